package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はブリッジサーバーとジョブランナーを同一プロセスで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はジョブランナーのみで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマの作成と既定プラットフォームの投入のみを行うことを示す。
	CommandMigrate Command = "migrate"
	// CommandCleanup は保守処理を1回だけ実行することを示す。
	CommandCleanup Command = "cleanup"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "cleanup":
		return CommandCleanup
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
