package password

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// BreachChecker reports how often a password appears in known breach corpora.
type BreachChecker interface {
	Count(ctx context.Context, password string) (int, error)
}

// PwnedChecker queries the Have I Been Pwned range API. Only the first five
// hex characters of the password's sha1 leave the process.
type PwnedChecker struct {
	baseURL string
	client  *http.Client
}

func NewPwnedChecker(baseURL string, client *http.Client) *PwnedChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &PwnedChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *PwnedChecker) Count(ctx context.Context, password string) (int, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("build breach request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("breach request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("breach api returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		hashSuffix, count, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || !strings.EqualFold(hashSuffix, suffix) {
			continue
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			return 0, fmt.Errorf("decode breach response: %w", err)
		}
		// padding entries carry a zero count
		return n, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read breach response: %w", err)
	}

	return 0, nil
}
