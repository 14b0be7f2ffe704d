package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// driverName はmodernc.org/sqliteが登録するドライバ名。
const driverName = "sqlite"

// DSN はSQLiteファイルパスから接続文字列を組み立てる。
// 外部キー制約を有効にし、WALモードで1ライター・複数リーダーの同時アクセスを許可する。
// 書き込みトランザクションはBEGIN IMMEDIATEで開始する。
func DSN(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"
}

// Open はSQLiteデータベースファイルを開く。
// 親ディレクトリが存在しない場合は作成する。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
