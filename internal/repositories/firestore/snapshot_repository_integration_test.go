//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/config"
	pfirestore "finitefield.org/manual/internal/platform/firestore"
	"finitefield.org/manual/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestSnapshotRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "manual-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close() })

	repo, err := NewSnapshotRepository(provider, "", "")
	if err != nil {
		t.Fatalf("new snapshot repository: %v", err)
	}
	ctx := context.Background()

	if _, err := repo.Load(ctx); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found before first save, got %v", err)
	}

	snap := domain.NewSnapshot()
	snap.CategoryOrder = []string{"getting-started"}
	snap.MenuStructure["getting-started"] = []string{"install"}
	snap.Pages["install"] = domain.PageMeta{Layout: domain.LayoutTabs}
	snap.Translations[domain.LanguageKorean] = map[string]domain.Value{
		"install.title":       domain.Text("설치"),
		"install.tab1.title":  domain.Text("윈도우"),
		"install.headerImage": domain.Text("images/a.png"),
	}
	snap.Visibility["install.headerImage"] = false
	snap.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Translations[domain.LanguageKorean]["install.tab1.title"].String(); got != "윈도우" {
		t.Fatalf("unexpected translation %q", got)
	}
	if loaded.Pages["install"].Layout != domain.LayoutTabs || loaded.Visibility["install.headerImage"] {
		t.Fatalf("unexpected loaded snapshot %+v", loaded)
	}
	if !loaded.UpdatedAt.Equal(snap.UpdatedAt) {
		t.Fatalf("expected updatedAt %s, got %s", snap.UpdatedAt, loaded.UpdatedAt)
	}

	snap.CategoryOrder = []string{}
	snap.MenuStructure = map[string][]string{}
	if err := repo.Save(ctx, snap); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	loaded, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(loaded.CategoryOrder) != 0 || len(loaded.MenuStructure) != 0 {
		t.Fatalf("expected wholesale overwrite, got %+v", loaded)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
