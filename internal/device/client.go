package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ルートページの読み込み上限。分類にはページ先頭だけで十分
const maxRootBodySize = 64 << 10

// Client はエッジデバイスのHTTP APIとの通信を担う
// タイムアウトは呼び出し側がコンテキストで制御する
type Client struct {
	httpClient *http.Client
}

// NewClient は新しいClientを作成する
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
	}
}

// CommandResult はデバイスの制御系エンドポイントの応答を表す
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FileEntry はデバイス上の1ファイルの情報
type FileEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileList はデバイスのファイル一覧応答を表す
type FileList struct {
	Files           []FileEntry `json:"files"`
	TotalFiles      int         `json:"total_files"`
	UploadQueueSize int         `json:"upload_queue_size"`
}

// Status はデバイスのステータスを取得する (GET /status)
func (c *Client) Status(ctx context.Context, addr Address) (Snapshot, error) {
	var snapshot Snapshot
	if err := c.getJSON(ctx, addr, "/status", &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Root はデバイスのルートページを取得する (GET /)
// 分類のフォールバック判定にのみ使用する
func (c *Client) Root(ctx context.Context, addr Address) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr.BaseURL()+"/", nil)
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("リクエストに失敗: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("デバイスがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRootBodySize))
	if err != nil {
		return "", fmt.Errorf("応答の読み込みに失敗: %w", err)
	}

	return string(body), nil
}

// Control はカメラパラメータを変更する (POST /control)
func (c *Client) Control(ctx context.Context, addr Address, variable string, value int) (*CommandResult, error) {
	payload := map[string]any{"var": variable, "val": value}
	return c.postCommand(ctx, addr, "/control", payload)
}

// Command は動作コマンドを実行する (POST /command)
func (c *Client) Command(ctx context.Context, addr Address, command string) (*CommandResult, error) {
	payload := map[string]any{"command": command}
	return c.postCommand(ctx, addr, "/command", payload)
}

// RecordingConfig は録画設定を変更する (POST /recording-config)
func (c *Client) RecordingConfig(ctx context.Context, addr Address, setting string, value int) (*CommandResult, error) {
	payload := map[string]any{"setting": setting, "value": value}
	return c.postCommand(ctx, addr, "/recording-config", payload)
}

// ApplySettings は設定を一括適用する (POST /apply-settings)
func (c *Client) ApplySettings(ctx context.Context, addr Address, settings map[string]any) (*CommandResult, error) {
	return c.postCommand(ctx, addr, "/apply-settings", settings)
}

// Files はデバイス上のファイル一覧を取得する (GET /files)
func (c *Client) Files(ctx context.Context, addr Address) (*FileList, error) {
	var list FileList
	if err := c.getJSON(ctx, addr, "/files", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Capture は静止画を取得する (GET /capture)
// 画像データとContent-Typeを返す
func (c *Client) Capture(ctx context.Context, addr Address) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr.BaseURL()+"/capture", nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストに失敗: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("デバイスがステータス %d を返しました", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("画像データの読み込みに失敗: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return data, contentType, nil
}

// getJSON はGETリクエストを発行してJSON応答をデコードする
func (c *Client) getJSON(ctx context.Context, addr Address, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr.BaseURL()+path, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("リクエストに失敗: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("デバイスがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("応答の解析に失敗: %w", err)
	}

	return nil
}

// postCommand はJSONペイロードをPOSTして制御系応答をデコードする
func (c *Client) postCommand(ctx context.Context, addr Address, path string, payload any) (*CommandResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ペイロードの作成に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr.BaseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リクエストに失敗: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("デバイスがステータス %d を返しました", resp.StatusCode)
	}

	var result CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("応答の解析に失敗: %w", err)
	}

	return &result, nil
}
