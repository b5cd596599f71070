package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lawq/internal/logger"
	"lawq/internal/models"
	"lawq/internal/utils"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// feedRequester 피드 동기화가 자료를 등록할 때 쓰는 내부 관리자
var feedRequester = models.Requester{ID: "system:law-feed", Role: models.RoleAdmin}

// LawFeedSync 법령 개정 RSS 피드를 주기적으로 읽어 새 항목을 법령 자료로 등록한다
type LawFeedSync struct {
	parser    *gofeed.Parser
	db        *gorm.DB
	documents *DocumentService
	urls      []string
	interval  time.Duration
	log       *logger.Logger
}

func NewLawFeedSync(gdb *gorm.DB, documents *DocumentService, urls []string, interval time.Duration, log *logger.Logger) *LawFeedSync {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &LawFeedSync{
		parser:    parser,
		db:        gdb,
		documents: documents,
		urls:      urls,
		interval:  interval,
		log:       log,
	}
}

// Run 시작 직후 한 번, 이후 interval 마다 모든 피드를 읽는다. 피드가 없으면 바로 돌아온다
func (s *LawFeedSync) Run(ctx context.Context) error {
	if len(s.urls) == 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SyncAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SyncAll 피드 하나가 실패해도 나머지는 계속 읽는다
func (s *LawFeedSync) SyncAll(ctx context.Context) int {
	total := 0
	for _, u := range s.urls {
		n, err := s.Sync(ctx, u)
		if err != nil {
			s.log.WithError(err).WithField("feed", u).Warn("law feed sync failed")
			continue
		}
		total += n
	}
	return total
}

// Sync 피드 하나를 읽고 새로 등록한 자료 수를 돌려준다. 이미 등록된 링크는 건너뛴다
func (s *LawFeedSync) Sync(ctx context.Context, feedURL string) (int, error) {
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("parse feed: %w", err)
	}

	added := 0
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			link = strings.TrimSpace(item.GUID)
		}
		title := strings.TrimSpace(item.Title)
		if link == "" || title == "" {
			continue
		}

		var exists int64
		if err := s.db.WithContext(ctx).Model(&models.LawDocument{}).
			Where("storage_url = ?", link).
			Count(&exists).Error; err != nil {
			return added, err
		}
		if exists > 0 {
			continue
		}

		// content:encoded 우선, 없으면 description. 둘 다 없으면 링크에서 가져온다
		content := item.Content
		if content == "" {
			content = item.Description
		}

		doc, err := s.documents.Register(ctx, feedRequester, DocumentInput{
			FileName:   title,
			StorageURL: link,
			Content:    normalizeText(utils.StripHTML(blockBreaks.Replace(content))),
		})
		if err != nil {
			s.log.WithError(err).WithField("link", link).Warn("register feed item failed")
			continue
		}
		added++
		s.log.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"feed":        feedURL,
		}).Info("law document added from feed")
	}
	return added, nil
}
