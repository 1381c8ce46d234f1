package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactCategory(t *testing.T) {
	tests := map[string]string{
		"stoerung":       "Störung",
		"finanzen":       "Finanzen",
		"eigene-technik": "Eigene Technik",
		"sonstiges":      "Allgemein",
		"":               "Allgemein",
	}
	for key, want := range tests {
		assert.Equal(t, want, ContactCategory(key), "key %q", key)
	}
}

func TestComposer_Contact(t *testing.T) {
	c := Composer{SupportAddress: "support@wh2.tu-dresden.de", UserDomain: "wh2.tu-dresden.de"}

	msg := c.Contact("jdoe", "john@example.com", "finanzen", "Überweisung", "Geld ist weg")

	assert.Equal(t, "john@example.com", msg.From)
	assert.Equal(t, "support@wh2.tu-dresden.de", msg.To)
	assert.Equal(t, "[Usersuite] Finanzen: Überweisung", msg.Subject)
	assert.Equal(t, "Nutzerlogin: jdoe\n\nGeld ist weg", msg.Body)
}

func TestComposer_MACChanged(t *testing.T) {
	c := Composer{SupportAddress: "support@wh2.tu-dresden.de", UserDomain: "wh2.tu-dresden.de"}

	msg := c.MACChanged("jdoe", "John Doe", "aa:bb:cc:dd:ee:ff", "11:22:33:44:55:66")

	assert.Equal(t, "jdoe@wh2.tu-dresden.de", msg.From)
	assert.Equal(t, "support@wh2.tu-dresden.de", msg.To)
	assert.Equal(t, "[Usersuite] jdoe hat seine/ihre MAC-Adresse geändert", msg.Subject)
	assert.Contains(t, msg.Body, "Alte MAC: aa:bb:cc:dd:ee:ff")
	assert.Contains(t, msg.Body, "Neue MAC: 11:22:33:44:55:66")
}
