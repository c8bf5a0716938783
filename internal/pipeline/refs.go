package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/forPelevin/yt2text/internal/types"
)

// Dedup keeps the first occurrence of each reference, preserving order.
// References are compared byte for byte.
func Dedup(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ReadReferenceFile returns the trimmed, non-blank lines of path that do not
// start with "#".
func ReadReferenceFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: list file: %v", types.ErrConfig, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read list file: %v", types.ErrConfig, err)
	}
	return out, nil
}

// CollectReferences concatenates positional references and the list file
// (when given), then deduplicates. An empty result is a config error.
func CollectReferences(args []string, listFile string) ([]string, error) {
	refs := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			refs = append(refs, a)
		}
	}
	if listFile != "" {
		fromFile, err := ReadReferenceFile(listFile)
		if err != nil {
			return nil, err
		}
		refs = append(refs, fromFile...)
	}
	refs = Dedup(refs)
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no video references given", types.ErrConfig)
	}
	return refs, nil
}
