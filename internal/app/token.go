package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hitoshi/resaleman/internal/config"
	"github.com/hitoshi/resaleman/internal/middleware"
)

// resolveBridgeToken はブリッジトークンを決定する。
// BRIDGE_TOKENが未設定の場合はデータディレクトリのトークンファイルを再利用し、
// ファイルもなければ生成して0600で書き出す。UIはこのファイルを読んで送信する。
func resolveBridgeToken(cfg *config.Config, logger *slog.Logger) (string, error) {
	if cfg.BridgeToken != "" {
		return cfg.BridgeToken, nil
	}

	path := cfg.BridgeTokenPath()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if token := strings.TrimSpace(string(b)); token != "" {
			return token, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("failed to read bridge token: %w", err)
	}

	token, err := middleware.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate bridge token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write bridge token: %w", err)
	}

	logger.Info("bridge token generated", slog.String("path", path))
	return token, nil
}
