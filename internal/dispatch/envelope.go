package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hitoshi/resaleman/internal/model"
)

// Envelope はすべてのエンドポイントが返す統一レスポンス。
// 成功時はData、失敗時はErrorにメッセージが入る。
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ok は成功のEnvelopeを返す。
func ok(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// fail は失敗のEnvelopeを返す。
func fail(message string) Envelope {
	return Envelope{Success: false, Error: message}
}

// Args はエンドポイントに渡される位置引数。
// 各要素はJSONエンコードされた値のまま保持し、エンドポイント側で型を決めて取り出す。
type Args []json.RawMessage

// NewArgs は任意の値から引数リストを組み立てる。主にテストとCLIから使用する。
func NewArgs(values ...any) (Args, error) {
	args := make(Args, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument: %w", err)
		}
		args = append(args, raw)
	}
	return args, nil
}

// present はi番目の引数が指定されているか（範囲内かつnullでない）を返す。
func (a Args) present(i int) bool {
	if i < 0 || i >= len(a) {
		return false
	}
	raw := bytes.TrimSpace(a[i])
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Decode はi番目の引数をvにデコードする。引数が省略されている場合はValidationErrorを返す。
func (a Args) Decode(i int, v any) error {
	if !a.present(i) {
		return model.NewValidationError(fmt.Sprintf("Missing argument %d", i+1), argField(i))
	}
	return a.decode(i, v)
}

// Optional はi番目の引数が指定されていればvにデコードしてtrueを返す。
// 省略またはnullの場合はvを変更せずにfalseを返す。
func (a Args) Optional(i int, v any) (bool, error) {
	if !a.present(i) {
		return false, nil
	}
	if err := a.decode(i, v); err != nil {
		return false, err
	}
	return true, nil
}

func (a Args) decode(i int, v any) error {
	if err := json.Unmarshal(a[i], v); err != nil {
		return model.NewValidationError(fmt.Sprintf("Invalid argument %d: %v", i+1, err), argField(i))
	}
	return nil
}

// ID はi番目の引数を正のIDとして取り出す。
func (a Args) ID(i int) (int64, error) {
	var id int64
	if err := a.Decode(i, &id); err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, model.NewValidationError(fmt.Sprintf("Invalid id: %d", id), argField(i))
	}
	return id, nil
}

// String はi番目の引数を文字列として取り出す。
func (a Args) String(i int) (string, error) {
	var s string
	if err := a.Decode(i, &s); err != nil {
		return "", err
	}
	return s, nil
}

// IntOr はi番目の引数を整数として取り出す。省略時はdefを返す。
func (a Args) IntOr(i, def int) (int, error) {
	n := def
	if _, err := a.Optional(i, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func argField(i int) string {
	return "arg" + strconv.Itoa(i+1)
}
