package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	"lawq/internal/utils"

	readability "github.com/go-shiori/go-readability"
)

// 본문 크기 상한 (법령 전문도 이 안에 들어온다)
const maxDocumentBytes = 10 << 20

// LawTextFetcher 법령 페이지에서 본문 텍스트를 뽑아낸다
type LawTextFetcher struct {
	client *http.Client
}

func NewLawTextFetcher() *LawTextFetcher {
	return &LawTextFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// 블록 요소 경계를 줄바꿈으로 남겨야 청크가 조문 단위로 끊긴다
var blockBreaks = strings.NewReplacer(
	"</p>", "</p>\n",
	"<br>", "<br>\n",
	"<br/>", "<br/>\n",
	"<br />", "<br />\n",
	"</div>", "</div>\n",
	"</li>", "</li>\n",
	"</tr>", "</tr>\n",
	"</h1>", "</h1>\n",
	"</h2>", "</h2>\n",
	"</h3>", "</h3>\n",
	"</h4>", "</h4>\n",
)

// FetchText URL 의 본문을 평문으로 돌려준다. text/plain 은 그대로 쓴다
func (f *LawTextFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := nurl.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return "", fmt.Errorf("invalid document url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lawq-fetcher/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("document status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		return normalizeText(string(body)), nil
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract document: %w", err)
	}
	return normalizeText(utils.StripHTML(blockBreaks.Replace(article.Content))), nil
}

// normalizeText 줄 끝 공백과 빈 줄 반복을 정리한다
func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
