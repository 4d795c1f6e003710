package memory

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"example.com/habits/internal/domain"
)

// seedSpec describes one demo activity.
type seedSpec struct {
	title    string
	typ      domain.ActivityType
	schedule domain.Schedule
}

var seedSpecs = []seedSpec{
	{"Morning run", domain.ActivityPersonal, domain.Daily(1)},
	{"Strength training", domain.ActivityPersonal, domain.Weekly(1, time.Monday, time.Wednesday, time.Friday)},
	{"Read 20 pages", domain.ActivityPersonal, domain.Daily(1)},
	{"Team standup notes", domain.ActivityGroup, domain.Weekly(1, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)},
	{"Hydration check", domain.ActivityPersonal, domain.Daily(3)},
	{"Weekend hike", domain.ActivityShared, domain.Weekly(1, time.Saturday, time.Sunday)},
}

// Seed fills the store with deterministic demo data for userID: the ids and
// completion pattern depend only on the seed value, so repeated boots of a
// snapshot-less dev server produce identical state.
func (s *Store) Seed(userID string, now time.Time, seed int64) error {
	rng := rand.New(rand.NewSource(seed))

	newID := func() string {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			// rand.Rand never fails Read.
			panic(err)
		}
		return id.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := now.AddDate(0, 0, -28)
	for i, spec := range seedSpecs {
		createdAt := start.Add(time.Duration(i) * time.Minute)
		activity := domain.Activity{
			ID:        newID(),
			Title:     spec.title,
			Type:      spec.typ,
			Schedule:  spec.schedule,
			SortOrder: i,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		s.activities = append(s.activities, activity)
		s.members = append(s.members, domain.ActivityMember{
			ID:         newID(),
			ActivityID: activity.ID,
			UserID:     userID,
			Role:       domain.RoleOwner,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		})

		for day := 0; day < 28; day++ {
			at := start.AddDate(0, 0, day).Add(8 * time.Hour)
			if !spec.schedule.ScheduledAt(at) {
				continue
			}
			for n := 0; n < spec.schedule.Target; n++ {
				// Roughly seven in ten due slots get completed.
				if rng.Float64() >= 0.7 {
					continue
				}
				done := at.Add(time.Duration(n) * time.Hour)
				s.completions = append(s.completions, domain.Completion{
					ID:          newID(),
					ActivityID:  activity.ID,
					UserID:      userID,
					CompletedAt: done,
					CreatedAt:   done,
					UpdatedAt:   done,
				})
			}
		}
	}

	s.persist()
	return nil
}
