// Package form はPOSTされたフォームのデコードと検証を行う。
//
// フィールドの表示名はlabelタグで指定し、検証エラーは
// 「表示名: メッセージ」の形でフラッシュ表示できるFieldErrorとして返す。
package form

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

// FieldError は1フィールドの検証エラー。
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// String はフラッシュメッセージ用の文字列を返す。
func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Label, e.Message)
}

// Errors はフォームの検証エラーの一覧。
type Errors []FieldError

// Error はerrorインターフェースを実装する。
func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.String()
	}
	return "form validation failed: " + strings.Join(msgs, "; ")
}

var (
	decoder  = newDecoder()
	validate = newValidator()
)

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.ZeroEmpty(true)
	return d
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("schema"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// 組み込みのmacはEUI-64とInfiniBandの形式も通す
	if err := v.RegisterValidation("mac48", isMAC48); err != nil {
		panic(err)
	}
	return v
}

func isMAC48(fl validator.FieldLevel) bool {
	hw, err := net.ParseMAC(fl.Field().String())
	return err == nil && len(hw) == 6
}

// Decode はリクエストボディのフォームをdstにデコードし検証する。
// 検証エラーはErrors、それ以外の失敗は通常のerrorとして返す。
func Decode(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("failed to parse form: %w", err)
	}

	if err := decoder.Decode(dst, r.PostForm); err != nil {
		var multi schema.MultiError
		if errors.As(err, &multi) {
			return conversionErrors(dst, multi)
		}
		return fmt.Errorf("failed to decode form: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return validationErrors(dst, verrs)
		}
		return fmt.Errorf("failed to validate form: %w", err)
	}
	return nil
}

func validationErrors(dst any, verrs validator.ValidationErrors) Errors {
	labels := labelsOf(dst)
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Label:   labels[fe.Field()],
			Message: message(fe.Tag(), fe.Param()),
		})
	}
	return out
}

func conversionErrors(dst any, multi schema.MultiError) Errors {
	labels := labelsOf(dst)
	keys := make([]string, 0, len(multi))
	for k := range multi {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Errors, 0, len(keys))
	for _, k := range keys {
		out = append(out, FieldError{Field: k, Label: labels[k], Message: "Ungültiger Wert."})
	}
	return out
}

// labelsOf はschema名から表示名への対応を返す。labelタグがなければschema名を使う。
func labelsOf(dst any) map[string]string {
	t := reflect.TypeOf(dst)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	labels := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("schema"), ",")
		if name == "" {
			name = f.Name
		}
		label := f.Tag.Get("label")
		if label == "" {
			label = name
		}
		labels[name] = label
	}
	return labels
}

func message(tag, param string) string {
	switch tag {
	case "required":
		return "Dieses Feld wird benötigt."
	case "email":
		return "Ungültige E-Mail-Adresse."
	case "mac", "mac48":
		return "Ungültige MAC-Adresse."
	case "oneof":
		return "Ungültige Auswahl."
	case "min":
		return fmt.Sprintf("Muss mindestens %s Zeichen lang sein.", param)
	case "max":
		return fmt.Sprintf("Darf höchstens %s Zeichen lang sein.", param)
	}
	return "Ungültiger Wert."
}
