package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は候補収集とクリーンアップのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandRun はパイプラインを1回だけ実行して結果を標準出力に書き出すことを示す。
	// 引数は run <agent_id> <platform> <niche>。
	CommandRun Command = "run"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
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
	case "run":
		return CommandRun
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// RunArgs はrunサブコマンドの引数。
type RunArgs struct {
	AgentID  string
	Platform string
	Niche    string
}

// ParseRunArgs はrunサブコマンドの位置引数を解析する。
// argsにはサブコマンド名を含めたos.Args[1:]を渡す。
func ParseRunArgs(args []string) (RunArgs, bool) {
	if len(args) < 4 || args[0] != string(CommandRun) {
		return RunArgs{}, false
	}
	ra := RunArgs{AgentID: args[1], Platform: args[2], Niche: args[3]}
	if ra.AgentID == "" || ra.Platform == "" || ra.Niche == "" {
		return RunArgs{}, false
	}
	return ra, true
}
