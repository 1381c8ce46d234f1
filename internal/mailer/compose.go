package mailer

import "fmt"

// contactCategories は問い合わせ種別のキーと件名に使う表示名。
var contactCategories = map[string]string{
	"stoerung":       "Störung",
	"finanzen":       "Finanzen",
	"eigene-technik": "Eigene Technik",
}

// ContactCategory は問い合わせ種別の表示名を返す。未知のキーは"Allgemein"。
func ContactCategory(key string) string {
	if name, ok := contactCategories[key]; ok {
		return name
	}
	return "Allgemein"
}

// Composer はサポート宛ての定型メールを組み立てる。
type Composer struct {
	SupportAddress string
	UserDomain     string
}

// Contact はユーザースイートの問い合わせフォームからのメールを組み立てる。
func (c Composer) Contact(uid, senderAddr, category, subject, message string) Message {
	return Message{
		From:    senderAddr,
		To:      c.SupportAddress,
		ReplyTo: senderAddr,
		Subject: fmt.Sprintf("[Usersuite] %s: %s", ContactCategory(category), subject),
		Body:    fmt.Sprintf("Nutzerlogin: %s\n\n%s", uid, message),
	}
}

// MACChanged はMACアドレス変更の通知メールを組み立てる。
func (c Composer) MACChanged(uid, name, oldMAC, newMAC string) Message {
	return Message{
		From:    fmt.Sprintf("%s@%s", uid, c.UserDomain),
		To:      c.SupportAddress,
		Subject: fmt.Sprintf("[Usersuite] %s hat seine/ihre MAC-Adresse geändert", uid),
		Body: fmt.Sprintf("Nutzer %s (%s) hat seine/ihre MAC-Adresse geändert.\nAlte MAC: %s\nNeue MAC: %s",
			name, uid, oldMAC, newMAC),
	}
}
