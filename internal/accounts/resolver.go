package accounts

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/novavida/novavida-backend/pkg/db/models"
	"github.com/novavida/novavida-backend/pkg/points"
)

// SponsorResolver walks upline chains. The walk is bounded by the level cap
// and a seen-set, so malformed data (cycles, self-sponsorship, dangling
// usernames) ends the walk instead of hanging it.
type SponsorResolver struct {
	repo Repository
}

func NewSponsorResolver(repo Repository) *SponsorResolver {
	return &SponsorResolver{repo: repo}
}

// DirectSponsor returns the buyer's level-1 sponsor, or nil when the chain
// ends immediately (no sponsor, unknown username, or self-reference).
func (r *SponsorResolver) DirectSponsor(ctx context.Context, buyer *models.Account) (*models.Account, error) {
	chain, err := r.Upline(ctx, buyer, 1)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[0], nil
}

// Upline returns up to maxLevels sponsors ordered from level 1 outward. A
// maxLevels of zero or above the cap uses the cap.
func (r *SponsorResolver) Upline(ctx context.Context, buyer *models.Account, maxLevels int) ([]*models.Account, error) {
	if buyer == nil {
		return nil, nil
	}
	if maxLevels <= 0 || maxLevels > points.MaxChainLevels {
		maxLevels = points.MaxChainLevels
	}

	seen := map[string]bool{buyer.Username: true}
	chain := make([]*models.Account, 0, maxLevels)
	current := buyer

	for len(chain) < maxLevels {
		sponsorName := ""
		if current.SponsorUsername != nil {
			sponsorName = strings.TrimSpace(*current.SponsorUsername)
		}
		if sponsorName == "" || seen[sponsorName] {
			break
		}

		sponsor, err := r.repo.GetByUsername(ctx, sponsorName)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		seen[sponsorName] = true
		chain = append(chain, sponsor)
		current = sponsor
	}
	return chain, nil
}
