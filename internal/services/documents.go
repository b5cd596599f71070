package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"lawq/internal/errorz"
	"lawq/internal/logger"
	"lawq/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 검색 후보로 불러올 최대 청크 수
const maxCandidateChunks = 500

// TextFetcher 원격 문서 본문을 가져온다
type TextFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// DocumentInput 법령 자료 등록 요청. Content 가 비면 StorageURL 에서 가져온다
type DocumentInput struct {
	FileName   string
	StorageURL string
	Version    int
	Active     *bool
	Content    string
}

// DocumentService 법령 자료 등록, 청크 분할, 키워드 검색
type DocumentService struct {
	db           *gorm.DB
	fetcher      TextFetcher
	chunkSize    int
	chunkOverlap int
	log          *logger.Logger
}

func NewDocumentService(gdb *gorm.DB, fetcher TextFetcher, chunkSize, chunkOverlap int, log *logger.Logger) *DocumentService {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &DocumentService{
		db:           gdb,
		fetcher:      fetcher,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		log:          log,
	}
}

// Register 자료를 저장하고 청크로 나눈다. 활성 버전을 올리면 같은 파일의 이전 버전은 비활성이 된다
func (s *DocumentService) Register(ctx context.Context, admin models.Requester, in DocumentInput) (*models.LawDocument, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	in.FileName = strings.TrimSpace(in.FileName)
	in.StorageURL = strings.TrimSpace(in.StorageURL)
	if in.FileName == "" || in.StorageURL == "" {
		return nil, fmt.Errorf("%w: file name and storage url are required", errorz.ErrEmptyBody)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		if s.fetcher == nil || !isHTTPURL(in.StorageURL) {
			return nil, fmt.Errorf("%w: document content", errorz.ErrEmptyBody)
		}
		text, err := s.fetcher.FetchText(ctx, in.StorageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch document: %v", errorz.ErrGatewayUnavailable, err)
		}
		content = text
	}

	pieces := SplitChunks(content, s.chunkSize, s.chunkOverlap)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: document content", errorz.ErrEmptyBody)
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	doc := models.LawDocument{
		FileName:   in.FileName,
		StorageURL: in.StorageURL,
		Version:    in.Version,
		IsActive:   active,
		UploadedBy: admin.ID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if doc.Version <= 0 {
			var maxVersion int
			if err := tx.Model(&models.LawDocument{}).
				Where("file_name = ?", doc.FileName).
				Select("COALESCE(MAX(version), 0)").
				Scan(&maxVersion).Error; err != nil {
				return err
			}
			doc.Version = maxVersion + 1
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}

		chunks := make([]models.LawChunk, len(pieces))
		for i, p := range pieces {
			chunks[i] = models.LawChunk{DocumentID: doc.ID, ChunkIndex: i, Content: p}
		}
		if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
			return err
		}

		if doc.IsActive {
			return tx.Model(&models.LawDocument{}).
				Where("file_name = ? AND id <> ?", doc.FileName, doc.ID).
				Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc.ChunkCount = len(pieces)
	s.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"file_name":   doc.FileName,
		"version":     doc.Version,
		"chunks":      doc.ChunkCount,
	}).Info("law document registered")
	return &doc, nil
}

// List 등록된 자료 (최신순)
func (s *DocumentService) List(ctx context.Context, admin models.Requester) ([]models.LawDocument, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	var docs []models.LawDocument
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		DocumentID string
		Count      int
	}
	if err := s.db.WithContext(ctx).Model(&models.LawChunk{}).
		Select("document_id, COUNT(*) AS count").
		Group("document_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	byDoc := make(map[string]int, len(counts))
	for _, c := range counts {
		byDoc[c.DocumentID] = c.Count
	}
	for i := range docs {
		docs[i].ChunkCount = byDoc[docs[i].ID]
	}
	return docs, nil
}

// SetActive 검색 대상 여부를 바꾼다
func (s *DocumentService) SetActive(ctx context.Context, admin models.Requester, documentID string, active bool) (*models.LawDocument, error) {
	if err := RequireAdmin(admin); err != nil {
		return nil, err
	}
	var doc models.LawDocument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&doc, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorz.ErrNotFound
			}
			return err
		}
		if err := tx.Model(&doc).Update("is_active", active).Error; err != nil {
			return err
		}
		if active {
			return tx.Model(&models.LawDocument{}).
				Where("file_name = ? AND id <> ?", doc.FileName, doc.ID).
				Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

type chunkRow struct {
	DocumentID string
	ChunkIndex int
	Content    string
	FileName   string
}

// Retrieve 활성 자료에서 질의어가 많이 겹치는 청크 k 개
func (s *DocumentService) Retrieve(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	terms := QueryTerms(query)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	match := s.db.Where("law_chunks.content LIKE ?", "%"+terms[0]+"%")
	for _, t := range terms[1:] {
		match = match.Or("law_chunks.content LIKE ?", "%"+t+"%")
	}

	var rows []chunkRow
	err := s.db.WithContext(ctx).
		Table("law_chunks").
		Select("law_chunks.document_id, law_chunks.chunk_index, law_chunks.content, law_documents.file_name").
		Joins("JOIN law_documents ON law_documents.id = law_chunks.document_id").
		Where("law_documents.is_active = ?", true).
		Where(match).
		Limit(maxCandidateChunks).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]RetrievedChunk, 0, len(rows))
	for _, r := range rows {
		score := scoreChunk(r.Content, terms)
		if score <= 0 {
			continue
		}
		results = append(results, RetrievedChunk{
			DocumentID: r.DocumentID,
			Title:      r.FileName,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Score:      score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// scoreChunk 겹치는 검색어 수가 우선이고 등장 횟수는 보조 점수
func scoreChunk(content string, terms []string) float64 {
	var score float64
	for _, t := range terms {
		n := strings.Count(content, t)
		if n == 0 {
			continue
		}
		if n > 10 {
			n = 10
		}
		score += 1 + float64(n)*0.1
	}
	return score
}

// 흔한 조사. 긴 것부터 검사한다
var josaSuffixes = []string{
	"에서는", "으로는", "에게서",
	"에서", "으로", "에게", "한테", "까지", "부터", "처럼", "보다", "이나", "라도",
	"은", "는", "이", "가", "을", "를", "에", "의", "와", "과", "도", "로", "만",
}

const maxQueryTerms = 12

// QueryTerms 질의문을 검색어로 나눈다. 조사를 떼고 두 글자 미만은 버린다
func QueryTerms(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = stripJosa(f)
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}

	if len(terms) > maxQueryTerms {
		sort.SliceStable(terms, func(i, j int) bool {
			return utf8.RuneCountInString(terms[i]) > utf8.RuneCountInString(terms[j])
		})
		terms = terms[:maxQueryTerms]
	}
	return terms
}

func stripJosa(word string) string {
	for _, suffix := range josaSuffixes {
		if strings.HasSuffix(word, suffix) {
			rest := strings.TrimSuffix(word, suffix)
			if utf8.RuneCountInString(rest) >= 2 {
				return rest
			}
			return word
		}
	}
	return word
}

// SplitChunks size 글자(rune) 단위로 자르고 overlap 만큼 겹친다.
// 창 끝 부분에 줄바꿈이나 공백이 있으면 그 자리에서 끊는다
func SplitChunks(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint end 바로 앞 20% 구간에서 줄바꿈, 없으면 공백 뒤를 찾는다
func breakPoint(runes []rune, start, end int) int {
	floor := end - (end-start)/5
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
