package utils

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path"
	"regexp"
	"strings"
	"sync"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (engine logs)
// This ensures we don't lose critical crash information if the engine dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *lockedBuffer
}

// lockedBuffer lets the exec copier goroutine write while we read crash logs.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps engine logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 DEPOT ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nENGINE CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy. It shows the error box and exits with status 1.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Content Addressing ---

// assetDigestPattern matches the hashed asset names emitted by the web build,
// e.g. "item.3f2a9c1b.zip".
var assetDigestPattern = regexp.MustCompile(`\.([0-9a-f]{8})\.[A-Za-z0-9]+$`)

// AssetDigest extracts the short md5 digest embedded in an asset URL path.
// It returns "" when the name is not content-addressed.
func AssetDigest(assetPath string) string {
	// Drop query strings a CDN may append
	if i := strings.IndexAny(assetPath, "?#"); i >= 0 {
		assetPath = assetPath[:i]
	}
	m := assetDigestPattern.FindStringSubmatch(path.Base(assetPath))
	if m == nil {
		return ""
	}
	return m[1]
}

// ContentDigest returns the hex md5 of data truncated to n characters (n <= 32).
func ContentDigest(data []byte, n int) string {
	sum := md5.Sum(data)
	s := hex.EncodeToString(sum[:])
	if n > 0 && n < len(s) {
		return s[:n]
	}
	return s
}

// GenerateImageID creates a deterministic hash for a screenshot file
// based on its path, size, and modification time.
func GenerateImageID(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", p, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
