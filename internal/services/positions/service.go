package positions

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/SpotBox/internal/cache"
	"github.com/BearBump/SpotBox/internal/geojson"
	"github.com/BearBump/SpotBox/internal/models"
	"github.com/pkg/errors"
)

const allAssets = "_all"

type Repository interface {
	InsertPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error)
	GetLatestPosition(ctx context.Context, assetID string) (*models.Position, error)
	GetPositionsSince(ctx context.Context, since time.Time, assetID string) ([]models.Position, error)
	GetAssetIDs(ctx context.Context) ([]string, error)
	GetDatabaseStats(ctx context.Context) (models.DatabaseStats, error)
	GetPositionCount(ctx context.Context, assetID string) (int64, error)
	Reset(ctx context.Context) error
}

// Service is the read side shared by the HTTP API, the MCP tools and the
// CLI. Latest lookups are cached; everything else goes to the store.
type Service struct {
	repo      Repository
	cache     cache.BytesCache
	latestTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, latestTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, latestTTL: latestTTL}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.latestTTL > 0
}

// Latest returns the newest position of assetID, or of any asset when
// assetID is empty. storage.ErrNotFound is passed through.
func (s *Service) Latest(ctx context.Context, assetID string) (*models.Position, error) {
	assetID = strings.TrimSpace(assetID)
	key := latestKey(assetID)

	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("latest cache get", "key", key, "error", err.Error())
		}
		if err == nil && ok {
			var p models.Position
			if json.Unmarshal(b, &p) == nil {
				return &p, nil
			}
		}
	}

	p, err := s.repo.GetLatestPosition(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if s.cacheEnabled() {
		b, _ := json.Marshal(p)
		if err := s.cache.Set(ctx, key, b, s.latestTTL); err != nil {
			slog.Warn("latest cache set", "key", key, "error", err.Error())
		}
	}
	return p, nil
}

func (s *Service) Since(ctx context.Context, since time.Time, assetID string) ([]models.Position, error) {
	return s.repo.GetPositionsSince(ctx, since, strings.TrimSpace(assetID))
}

func (s *Service) Stats(ctx context.Context) (models.DatabaseStats, error) {
	return s.repo.GetDatabaseStats(ctx)
}

// Count returns how many positions are stored for assetID, or in total when
// assetID is empty.
func (s *Service) Count(ctx context.Context, assetID string) (int64, error) {
	return s.repo.GetPositionCount(ctx, strings.TrimSpace(assetID))
}

func (s *Service) Assets(ctx context.Context) ([]string, error) {
	return s.repo.GetAssetIDs(ctx)
}

func (s *Service) GeoJSON(ctx context.Context, since time.Time, assetID string, kind geojson.GeometryKind) (*geojson.FeatureCollection, error) {
	ps, err := s.Since(ctx, since, assetID)
	if err != nil {
		return nil, err
	}
	return geojson.Build(ps, kind), nil
}

// ImportPositions stores externally sourced positions (GPX files) with the
// same validation and deduplication as collected ones.
func (s *Service) ImportPositions(ctx context.Context, ps []models.Position) (models.InsertResult, error) {
	if len(ps) == 0 {
		return models.InsertResult{}, errors.New("nothing to import")
	}
	res, err := s.repo.InsertPositions(ctx, ps)
	if err != nil {
		return res, err
	}
	if res.Inserted > 0 {
		s.Invalidate(ctx, assetsOf(ps))
	}
	return res, nil
}

// Reset deletes every stored position and drops the latest cache of every
// asset that existed.
func (s *Service) Reset(ctx context.Context) error {
	assets, err := s.repo.GetAssetIDs(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.Reset(ctx); err != nil {
		return err
	}
	s.Invalidate(ctx, assets)
	return nil
}

// Invalidate drops the cached latest positions of assets and of the
// any-asset lookup.
func (s *Service) Invalidate(ctx context.Context, assets []string) {
	if !s.cacheEnabled() {
		return
	}
	keys := make([]string, 0, len(assets)+1)
	keys = append(keys, latestKey(""))
	for _, a := range assets {
		keys = append(keys, latestKey(a))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("latest cache invalidate", "error", err.Error())
	}
}

func assetsOf(ps []models.Position) []string {
	seen := make(map[string]struct{}, len(ps))
	out := make([]string, 0)
	for _, p := range ps {
		if _, ok := seen[p.AssetID]; ok {
			continue
		}
		seen[p.AssetID] = struct{}{}
		out = append(out, p.AssetID)
	}
	return out
}

func latestKey(assetID string) string {
	if assetID == "" {
		assetID = allAssets
	}
	return "position:" + assetID + ":latest"
}
