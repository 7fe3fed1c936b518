package statsd

import (
	"net"
	"strings"
	"testing"
)

func TestCleanPrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  optilab.api  ": "optilab.api",
		"..jobs..":        "jobs",
		".":               "",
		"":                "",
	}

	for input, want := range tests {
		if got := cleanPrefix(input); got != want {
			t.Fatalf("cleanPrefix(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" solve/duration ":   "solve_duration",
		"jobs..reserved":     "jobs.reserved",
		"two  spaces":        "two__spaces",
		"runs/highs/elapsed": "runs_highs_elapsed",
		"   ":                "",
	}

	for input, want := range tests {
		if got := cleanName(input); got != want {
			t.Fatalf("cleanName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTagSuffix(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		// Padding exercises the trim on both key and value.
		//nolint:gocritic // whitespace is part of the test case
		" service ": " optilab ",
	}
	local := map[string]string{
		"outcome": " optimal ",
		"":        "ignored",
		"env":     "stage",
	}

	got := tagSuffix(global, local)
	want := "|#env:stage,outcome:optimal,service:optilab"

	if got != want {
		t.Fatalf("tagSuffix mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestTagSuffixEmpty(t *testing.T) {
	t.Parallel()

	if got := tagSuffix(nil, nil); got != "" {
		t.Fatalf("tagSuffix(nil, nil) = %q, want empty string", got)
	}
	if got := tagSuffix(map[string]string{" ": "dropped"}, nil); got != "" {
		t.Fatalf("tagSuffix with only blank keys = %q, want empty string", got)
	}
}

func TestCopyTagsReturnsCopy(t *testing.T) {
	t.Parallel()

	original := map[string]string{
		"env": "prod",
		"":    "ignored",
	}

	cloned := copyTags(original)
	if cloned == nil {
		t.Fatal("copyTags returned nil map")
	}

	cloned["env"] = "stage"
	if original["env"] != "prod" {
		t.Fatal("copyTags did not copy values")
	}

	if _, ok := cloned[""]; ok {
		t.Fatal("copyTags kept empty key")
	}
}

func TestMetricNameDropsEmptyNames(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "optilab"}
	if got := c.metricName("jobs.created"); got != "optilab.jobs.created" {
		t.Fatalf("metricName = %q", got)
	}
	if got := c.metricName("   "); got != "" {
		t.Fatalf("metricName for blank input = %q, want empty string", got)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}

	// Close twice: the second call must be a no-op.
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
	// Metric calls on a nil client must not panic.
	nilClient.Count("jobs.created", 1, nil)
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}

	// Emitting through a disabled client is a silent no-op.
	client.Count("jobs.created", 1, nil)
	client.Gauge("queue.depth", 3, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
