package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除を実行することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHashPassword はSAMPLE_USERS用のbcryptハッシュを生成することを示す。
	CommandHashPassword Command = "hash-password"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandServe, CommandMigrate, CommandHealthcheck, CommandHashPassword:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// MigrateAction はmigrateサブコマンドの動作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateAction はmigrateに続く引数を解析する。省略時はMigrateUp。
// 未知の動作ではokにfalseを返す。
func ParseMigrateAction(args []string) (action MigrateAction, ok bool) {
	if len(args) == 0 {
		return MigrateUp, true
	}
	switch a := MigrateAction(args[0]); a {
	case MigrateUp, MigrateDown, MigrateVersion:
		return a, true
	}
	return "", false
}
