package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/fitpick/apiserver/internal/archive"
	"github.com/fitpick/apiserver/internal/events"
	"github.com/fitpick/apiserver/internal/provider"
	"github.com/fitpick/apiserver/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	publishTimeout = 5 * time.Second
)

// OutfitRepository defines persistence operations for generated outfits.
type OutfitRepository interface {
	Create(ctx context.Context, outfit types.Outfit) (types.Outfit, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]types.Outfit, error)
	Get(ctx context.Context, id int64) (types.Outfit, error)
}

// OutfitService encapsulates outfit-generation use-cases. Archive and
// publisher may be nil when the corresponding backend is not configured;
// both are best-effort and never fail a generation.
type OutfitService struct {
	repo      OutfitRepository
	generator provider.Generator
	archive   archive.ObjectStore
	publisher events.Publisher
}

func NewOutfitService(
	repo OutfitRepository,
	generator provider.Generator,
	objectStore archive.ObjectStore,
	publisher events.Publisher,
) *OutfitService {
	return &OutfitService{
		repo:      repo,
		generator: generator,
		archive:   objectStore,
		publisher: publisher,
	}
}

// BuildPrompt renders the generation prompt for a season and event.
// Hyphenated event slugs ("date-night") read as words in the prompt.
func BuildPrompt(season, event string) string {
	return fmt.Sprintf(`Generate a stylish outfit recommendation for a %s during %s.

Please provide your response in this exact JSON format:
{
    "top": "specific clothing item",
    "bottom": "specific clothing item",
    "shoes": "specific footwear",
    "accessories": "2-3 relevant accessories",
    "style_tip": "brief explanation of why this outfit works for the occasion and season"
}

Keep suggestions practical, stylish, and appropriate for the season and event type.`,
		strings.ReplaceAll(event, "-", " "), season)
}

// Generate calls the provider, archives the raw response, persists the
// history row, and publishes a generation event.
func (s *OutfitService) Generate(ctx context.Context, user types.User, season, event string) (types.Outfit, error) {
	result, err := s.generator.Generate(ctx, BuildPrompt(season, event))
	if err != nil {
		return types.Outfit{}, err
	}

	generatedAt := time.Now()

	archiveKey := ""
	if s.archive != nil {
		key := fmt.Sprintf("outfits/%d/%d.json", user.ID, generatedAt.UnixNano())
		err := s.archive.Put(ctx, key, bytes.NewReader(result.Raw), int64(len(result.Raw)), "application/json")
		if err != nil {
			log.Printf("archive put failed for user %d: %v", user.ID, err)
		} else {
			archiveKey = key
		}
	}

	outfit, err := s.repo.Create(ctx, types.Outfit{
		UserID:      user.ID,
		Season:      season,
		Event:       event,
		Outfit:      result.Text,
		ArchiveKey:  archiveKey,
		GeneratedAt: generatedAt,
	})
	if err != nil {
		return types.Outfit{}, err
	}

	if s.publisher != nil {
		// Detached from the request so an aborted caller does not
		// orphan the publish mid-write.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if _, err := s.publisher.Publish(pubCtx, events.GenerationEvent{
			OutfitID:    outfit.ID,
			UserID:      user.ID,
			Username:    user.Username,
			Season:      season,
			Event:       event,
			GeneratedAt: outfit.GeneratedAt,
		}); err != nil {
			log.Printf("publish generation event failed for outfit %d: %v", outfit.ID, err)
		}
	}

	return outfit, nil
}

// History returns the user's generations, newest first.
func (s *OutfitService) History(ctx context.Context, userID int64, limit int) ([]types.Outfit, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// ErrNoArchive is returned when a generation has no archived response.
var ErrNoArchive = errors.New("no archived response")

// RawResponse streams the archived provider response for one of the
// user's own generations.
func (s *OutfitService) RawResponse(ctx context.Context, userID, outfitID int64) (io.ReadCloser, error) {
	outfit, err := s.repo.Get(ctx, outfitID)
	if err != nil {
		return nil, err
	}
	if outfit.UserID != userID {
		return nil, ErrNoArchive
	}
	if s.archive == nil || outfit.ArchiveKey == "" {
		return nil, ErrNoArchive
	}
	return s.archive.Get(ctx, outfit.ArchiveKey)
}
