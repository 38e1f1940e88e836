package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"edgegate/internal/config"
	"edgegate/internal/device"
	"edgegate/internal/discovery"
	"edgegate/internal/gateway"
)

// newTestGateway はテスト用のGatewayを組み立てる
// 検出戦略は固定候補のみとし、ネットワークスキャンを発生させない
func newTestGateway(t *testing.T, classifier device.Classifier, static []device.Address) *gateway.Gateway {
	t.Helper()

	client := device.NewClient()
	registry := device.NewRegistry()
	strategies := []discovery.Strategy{discovery.NewStaticStrategy(static)}

	g := &gateway.Gateway{
		Registry:   registry,
		Store:      gateway.NewStore(filepath.Join(t.TempDir(), "device_config.json"), client, 5*time.Second),
		Discoverer: discovery.New(classifier, registry, strategies, time.Hour),
		Classifier: classifier,
		Client:     client,
	}
	g.Proxy = gateway.NewProxy(g.ResolvePrimary, client, gateway.Timeouts{
		Control: 5 * time.Second,
		Capture: 5 * time.Second,
	}, nil)

	return g
}

// newTestServer はテスト用のServerを作成する
func newTestServer(t *testing.T, gw *gateway.Gateway) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"

	return New(cfg, gw)
}

// newFakeDevice はデバイスAPIを模したテストサーバーを作成する
func newFakeDevice(t *testing.T) device.Address {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_type":    "edge_monitor",
			"wifi_connected": true,
			"camera_ready":   true,
			"sd_ready":       true,
		})
	})
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "updated"})
	})
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/recording-config", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/apply-settings", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files":             []map[string]any{{"name": "video_001.avi", "size": 1048576}},
			"total_files":       1,
			"upload_queue_size": 0,
		})
	})
	mux.HandleFunc("/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><title>Edge Monitor</title></html>"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("テストサーバーURLの解析に失敗: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("テストサーバーポートの解析に失敗: %v", err)
	}

	return device.Address{Host: u.Hostname(), Port: port}
}

// doRequest はテスト用のHTTPリクエストを実行する
func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("リクエストボディの作成に失敗: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	srv.engine.ServeHTTP(recorder, req)

	return recorder
}

// decodeJSON は応答ボディをJSONとして解析する
func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("応答の解析に失敗: %v (body=%s)", err, recorder.Body.String())
	}
	return result
}

// TestHealthCheck はヘルスチェックエンドポイントをテストする
func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, newTestGateway(t, device.NewMockClassifier(), nil))

	recorder := doRequest(t, srv, http.MethodGet, "/health", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}

	response := decodeJSON(t, recorder)
	if response["status"] != "healthy" {
		t.Errorf("ヘルスチェックの応答が不正: %v", response)
	}
}

// TestGetStatus はゲートウェイ状態エンドポイントをテストする
func TestGetStatus(t *testing.T) {
	srv := newTestServer(t, newTestGateway(t, device.NewMockClassifier(), nil))

	recorder := doRequest(t, srv, http.MethodGet, "/api/status", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}

	response := decodeJSON(t, recorder)
	if response["status"] != "running" {
		t.Errorf("ゲートウェイ状態が不正: %v", response)
	}
	if response["devices"] != float64(0) {
		t.Errorf("デバイス数が一致しません: %v", response["devices"])
	}
	if _, ok := response["primary"]; ok {
		t.Error("未設定なのにプライマリが応答に含まれています")
	}
}

// TestDiscoverEndpoint は検出エンドポイントをテストする
func TestDiscoverEndpoint(t *testing.T) {
	addr := device.Address{Host: "10.0.0.5", Port: 80}

	classifier := device.NewMockClassifier()
	classifier.AddDevice(addr, device.Snapshot{"device_type": "edge_monitor"})

	srv := newTestServer(t, newTestGateway(t, classifier, []device.Address{addr}))

	recorder := doRequest(t, srv, http.MethodPost, "/api/discover?force=true", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d (body=%s)", recorder.Code, recorder.Body.String())
	}

	response := decodeJSON(t, recorder)
	if response["count"] != float64(1) {
		t.Errorf("検出数が一致しません: %v", response["count"])
	}
	if response["scan_id"] == "" {
		t.Error("スキャンIDが応答に含まれていません")
	}

	// 検出後はデバイス一覧にも反映される
	recorder = doRequest(t, srv, http.MethodGet, "/api/devices", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}
	response = decodeJSON(t, recorder)
	if response["count"] != float64(1) {
		t.Errorf("デバイス一覧が検出結果を反映していません: %v", response)
	}

	// 検出サブシステムの状態
	recorder = doRequest(t, srv, http.MethodGet, "/api/discovery", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}
	response = decodeJSON(t, recorder)
	if response["scanning"] != false {
		t.Errorf("スキャン中フラグが不正: %v", response["scanning"])
	}
}

// TestAddDeviceEndpoint はデバイス手動登録エンドポイントをテストする
func TestAddDeviceEndpoint(t *testing.T) {
	addr := device.Address{Host: "10.0.0.5", Port: 80}

	classifier := device.NewMockClassifier()
	classifier.AddDevice(addr, device.Snapshot{"device_type": "edge_monitor"})

	srv := newTestServer(t, newTestGateway(t, classifier, nil))

	// 検証済みデバイスの登録
	recorder := doRequest(t, srv, http.MethodPost, "/api/devices", map[string]any{"ip": "10.0.0.5", "port": 80})
	if recorder.Code != http.StatusCreated {
		t.Errorf("ステータスコードが一致しません: %d (body=%s)", recorder.Code, recorder.Body.String())
	}

	// 検証できないデバイスは422で拒否される
	recorder = doRequest(t, srv, http.MethodPost, "/api/devices", map[string]any{"ip": "10.0.0.99", "port": 80})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}
	if response := decodeJSON(t, recorder); response["error"] != "device_not_verified" {
		t.Errorf("エラーコードが一致しません: %v", response["error"])
	}

	// 不正なリクエストボディ
	recorder = doRequest(t, srv, http.MethodPost, "/api/devices", map[string]any{"ip": "10.0.0.5"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}
}

// TestDeviceConfigEndpoints はプライマリデバイス設定の取得と保存をテストする
func TestDeviceConfigEndpoints(t *testing.T) {
	deviceAddr := newFakeDevice(t)
	srv := newTestServer(t, newTestGateway(t, device.NewMockClassifier(), nil))

	// 未設定時は404
	recorder := doRequest(t, srv, http.MethodGet, "/api/device/config", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}
	if response := decodeJSON(t, recorder); response["error"] != "not_configured" {
		t.Errorf("エラーコードが一致しません: %v", response["error"])
	}

	// 到達可能なデバイスの設定
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/config", map[string]any{
		"ip":   deviceAddr.Host,
		"port": deviceAddr.Port,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d (body=%s)", recorder.Code, recorder.Body.String())
	}
	if response := decodeJSON(t, recorder); response["success"] != true {
		t.Errorf("設定の保存が成功と報告されていません: %v", response)
	}

	// 設定後は生存状態つきで取得できる
	recorder = doRequest(t, srv, http.MethodGet, "/api/device/config", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}
	response := decodeJSON(t, recorder)
	if response["ip"] != deviceAddr.Host {
		t.Errorf("設定されたアドレスが一致しません: %v", response["ip"])
	}
	if response["online"] != true {
		t.Errorf("生存状態が反映されていません: %v", response)
	}

	// 到達不能なデバイスは422で拒否される
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/config", map[string]any{
		"ip":   "127.0.0.1",
		"port": 1,
	})
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}
}

// TestProxyEndpointsNoDevice は未設定時のプロキシ応答をテストする
func TestProxyEndpointsNoDevice(t *testing.T) {
	srv := newTestServer(t, newTestGateway(t, device.NewMockClassifier(), nil))

	paths := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/device/status", nil},
		{http.MethodPost, "/api/device/control", map[string]any{"var": "quality", "val": 10}},
		{http.MethodPost, "/api/device/command", map[string]any{"command": "photo"}},
		{http.MethodPost, "/api/device/recording-config", map[string]any{"setting": "interval", "value": 60}},
		{http.MethodPost, "/api/device/apply-settings", map[string]any{"quality": 10}},
		{http.MethodGet, "/api/device/files", nil},
		{http.MethodGet, "/api/device/capture", nil},
	}

	for _, p := range paths {
		recorder := doRequest(t, srv, p.method, p.path, p.body)
		if recorder.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: ステータスコードが一致しません: %d", p.method, p.path, recorder.Code)
			continue
		}
		if response := decodeJSON(t, recorder); response["error"] != "no_device_configured" {
			t.Errorf("%s %s: エラーコードが一致しません: %v", p.method, p.path, response["error"])
		}
	}
}

// TestProxyEndpoints はデバイスが設定済みの場合のプロキシ転送をテストする
func TestProxyEndpoints(t *testing.T) {
	deviceAddr := newFakeDevice(t)
	gw := newTestGateway(t, device.NewMockClassifier(), nil)

	// フォールバック経路: レジストリのエントリがプライマリとして使われる
	gw.Registry.Upsert(device.Record{Address: deviceAddr, LastSeen: time.Now()})

	srv := newTestServer(t, gw)

	// ステータス転送
	recorder := doRequest(t, srv, http.MethodGet, "/api/device/status", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d (body=%s)", recorder.Code, recorder.Body.String())
	}
	if response := decodeJSON(t, recorder); response["device_type"] != "edge_monitor" {
		t.Errorf("デバイスステータスが転送されていません: %v", response)
	}

	// 制御転送
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/control", map[string]any{"var": "quality", "val": 10})
	if recorder.Code != http.StatusOK {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}

	// コマンド転送
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/command", map[string]any{"command": "photo"})
	if recorder.Code != http.StatusOK {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}

	// 録画設定転送
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/recording-config", map[string]any{"setting": "interval", "value": 60})
	if recorder.Code != http.StatusOK {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}

	// 一括設定転送
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/apply-settings", map[string]any{"quality": 10, "brightness": 1})
	if recorder.Code != http.StatusOK {
		t.Errorf("ステータスコードが一致しません: %d (body=%s)", recorder.Code, recorder.Body.String())
	}

	// ファイル一覧転送
	recorder = doRequest(t, srv, http.MethodGet, "/api/device/files", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}
	if response := decodeJSON(t, recorder); response["total_files"] != float64(1) {
		t.Errorf("ファイル一覧が転送されていません: %v", response)
	}

	// 静止画転送
	recorder = doRequest(t, srv, http.MethodGet, "/api/device/capture", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "image/jpeg" {
		t.Errorf("Content-Typeが一致しません: %s", contentType)
	}
	if recorder.Body.Len() == 0 {
		t.Error("画像データが空です")
	}
}

// TestProxyApplySettingsValidation は一括設定の入力検証をテストする
func TestProxyApplySettingsValidation(t *testing.T) {
	deviceAddr := newFakeDevice(t)
	gw := newTestGateway(t, device.NewMockClassifier(), nil)
	gw.Registry.Upsert(device.Record{Address: deviceAddr, LastSeen: time.Now()})

	srv := newTestServer(t, gw)

	// 未知の設定項目は400で拒否される
	recorder := doRequest(t, srv, http.MethodPost, "/api/device/apply-settings", map[string]any{"unknown_key": 1})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}

	// 空の設定も拒否される
	recorder = doRequest(t, srv, http.MethodPost, "/api/device/apply-settings", map[string]any{})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: %d", recorder.Code)
	}
}

// TestProxyDeviceUnreachable は到達不能なデバイスへの転送応答をテストする
func TestProxyDeviceUnreachable(t *testing.T) {
	gw := newTestGateway(t, device.NewMockClassifier(), nil)
	gw.Registry.Upsert(device.Record{Address: device.Address{Host: "127.0.0.1", Port: 1}, LastSeen: time.Now()})

	srv := newTestServer(t, gw)

	recorder := doRequest(t, srv, http.MethodGet, "/api/device/status", nil)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("ステータスコードが一致しません: %d", recorder.Code)
	}
	if response := decodeJSON(t, recorder); response["error"] != "device_unreachable" {
		t.Errorf("エラーコードが一致しません: %v", response["error"])
	}
}

// TestServerStartShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 18742

	srv := New(cfg, newTestGateway(t, device.NewMockClassifier(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// 起動を待ってからキャンセルする
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("シャットダウンに失敗: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("シャットダウンがタイムアウトしました")
	}
}
