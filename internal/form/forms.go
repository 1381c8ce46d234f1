package form

// LoginForm はログインフォーム。
type LoginForm struct {
	Division string `schema:"division" label:"Sektion" validate:"required"`
	Username string `schema:"username" label:"Nutzername" validate:"required,max=64"`
	Password string `schema:"password" label:"Passwort" validate:"required"`
	Remember bool   `schema:"remember" label:"Eingeloggt bleiben"`
}

// ContactForm はユーザースイートの問い合わせフォーム。
type ContactForm struct {
	Email   string `schema:"email" label:"Deine E-Mail-Adresse" validate:"required,email"`
	Type    string `schema:"type" label:"Kategorie" validate:"required,oneof=stoerung finanzen eigene-technik frage"`
	Subject string `schema:"subject" label:"Betreff" validate:"required,max=200"`
	Message string `schema:"message" label:"Nachricht" validate:"required"`
}

// ChangePasswordForm はパスワード変更フォーム。
type ChangePasswordForm struct {
	Old  string `schema:"old" label:"Altes Passwort" validate:"required"`
	New  string `schema:"new" label:"Neues Passwort" validate:"required,min=4"`
	New2 string `schema:"new2" label:"Bestätigung" validate:"required"`
}

// ChangeMailForm は転送先メールアドレスの変更フォーム。
type ChangeMailForm struct {
	Password string `schema:"password" label:"Passwort" validate:"required"`
	Email    string `schema:"email" label:"Neue Mail" validate:"required,email"`
}

// DeleteMailForm は転送先メールアドレスの削除フォーム。
type DeleteMailForm struct {
	Password string `schema:"password" label:"Passwort" validate:"required"`
}

// ChangeMACForm はMACアドレスの変更フォーム。
type ChangeMACForm struct {
	Password string `schema:"password" label:"Passwort" validate:"required"`
	MAC      string `schema:"mac" label:"Neue MAC" validate:"required,mac48"`
}

// HostingForm はホスティング用データベースの作成・パスワード変更フォーム。
type HostingForm struct {
	Password1 string `schema:"password1" label:"Passwort" validate:"required,min=4"`
	Password2 string `schema:"password2" label:"Passwort bestätigen" validate:"required"`
	Action    string `schema:"action" label:"Aktion" validate:"required,oneof=create change"`
}
