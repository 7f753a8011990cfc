package roomcal_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// composeService はdocker-compose.ymlから指定サービスのブロックを切り出す。
func composeService(t *testing.T, content, name string) string {
	t.Helper()
	start := strings.Index(content, "\n  "+name+":\n")
	if start < 0 {
		t.Fatalf("docker-compose.yml should contain service %q", name)
	}
	block := content[start+1:]
	lines := strings.Split(block, "\n")
	end := len(lines)
	for i := 1; i < len(lines); i++ {
		l := lines[i]
		if l == "" {
			continue
		}
		if !strings.HasPrefix(l, "    ") {
			end = i
			break
		}
	}
	return strings.Join(lines[:end], "\n")
}

func TestDockerfile(t *testing.T) {
	content := readFile(t, "Dockerfile")

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}

	tests := []struct {
		name string
		ok   bool
	}{
		{"Goのビルドステージがある", strings.Contains(content, "FROM golang:")},
		{"実行ステージはdistroless", strings.Contains(lastFrom, "gcr.io/distroless")},
		{"cmd/roomcalをビルドする", strings.Contains(content, "./cmd/roomcal")},
		{"ENTRYPOINTでroomcalを起動する", strings.Contains(content, `ENTRYPOINT ["/usr/local/bin/roomcal"]`)},
		{"healthcheckサブコマンドを使う", strings.Contains(content, `"healthcheck"`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.ok {
				t.Errorf("Dockerfile check failed: %s", tt.name)
			}
		})
	}
}

func TestDockerCompose(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	t.Run("PostgreSQLイメージを使う", func(t *testing.T) {
		db := composeService(t, content, "db")
		if !strings.Contains(db, "image: postgres:") {
			t.Errorf("db service should use postgres image:\n%s", db)
		}
	})

	t.Run("サブコマンド", func(t *testing.T) {
		for svc, cmd := range map[string]string{
			"api":     `command: ["serve"]`,
			"worker":  `command: ["worker"]`,
			"migrate": `command: ["migrate"]`,
		} {
			block := composeService(t, content, svc)
			if !strings.Contains(block, cmd) {
				t.Errorf("%s service should contain %q", svc, cmd)
			}
		}
	})

	t.Run("内部ネットワーク", func(t *testing.T) {
		if !strings.Contains(content, "internal: true") {
			t.Error("docker-compose.yml should define an internal network")
		}
	})

	t.Run("外部通信はapiのみ", func(t *testing.T) {
		tests := []struct {
			service      string
			wantExternal bool
		}{
			{"api", true},
			{"worker", false},
			{"migrate", false},
			{"db", false},
		}
		for _, tt := range tests {
			block := composeService(t, content, tt.service)
			got := strings.Contains(block, "- external")
			if got != tt.wantExternal {
				t.Errorf("%s external network = %v, want %v", tt.service, got, tt.wantExternal)
			}
		}
	})
}
