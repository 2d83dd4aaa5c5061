package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// 2024-03-04 is a Monday.
const monday = "2024-03-04"

func candidateNames(result *models.CandidateResult) map[string]schedule.Reason {
	out := make(map[string]schedule.Reason, len(result.Candidates))
	for _, c := range result.Candidates {
		out[c.Teacher.Name] = c.Reason
	}
	return out
}

func TestCandidateServiceScenarioB(t *testing.T) {
	sc := newScenarioA(t, newFakeStore())
	ctx := context.Background()
	_, err := sc.svc.Availability.Recompute(ctx)
	require.NoError(t, err)

	result, err := sc.svc.Candidates.Search(ctx, models.CandidateQuery{Date: monday, Time: firstSlot})
	require.NoError(t, err)
	assert.Equal(t, schedule.Monday, result.Day)
	assert.Equal(t, map[string]schedule.Reason{
		"Lee":          schedule.ReasonSpecialistFree,
		"Homeroom 3-1": schedule.ReasonHomeroomFreed,
		"Homeroom 3-2": schedule.ReasonHomeroomFreed,
	}, candidateNames(result))
	for _, c := range result.Candidates {
		if c.Reason == schedule.ReasonHomeroomFreed {
			assert.Equal(t, []string{sc.kim.ID}, c.FreedBy)
		}
	}
}

func TestCandidateServiceSoundness(t *testing.T) {
	sc := newScenarioA(t, newFakeStore())
	ctx := context.Background()
	setSlot(t, sc.svc, sc.lee.ID, "monday", firstSlot, schedule.KindTeaching, "3-1")
	_, err := sc.svc.Availability.Recompute(ctx)
	require.NoError(t, err)

	result, err := sc.svc.Candidates.Search(ctx, models.CandidateQuery{Day: "monday", Time: firstSlot})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	for _, c := range result.Candidates {
		switch c.Reason {
		case schedule.ReasonSpecialistFree:
			assert.True(t, c.Teacher.SlotAt(schedule.Monday, firstSlot).IsFree())
		case schedule.ReasonHomeroomFreed:
			own, err := c.Teacher.ClassRef()
			require.NoError(t, err)
			for _, id := range c.FreedBy {
				s, err := sc.svc.Teachers.Get(ctx, id)
				require.NoError(t, err)
				assert.True(t, s.SlotAt(schedule.Monday, firstSlot).Covers(own))
			}
		}
	}
	for _, c := range result.Candidates {
		if c.Teacher.ID == sc.h31.ID {
			assert.ElementsMatch(t, []string{sc.kim.ID, sc.lee.ID}, c.FreedBy)
		}
	}
}

func TestCandidateServiceScenarioD(t *testing.T) {
	sc := newScenarioA(t, newFakeStore())
	ctx := context.Background()
	_, err := sc.svc.TimeSlots.ReplaceAll(ctx, []string{firstSlot})
	require.NoError(t, err)

	result, err := sc.svc.Candidates.Search(ctx, models.CandidateQuery{Date: monday, Time: secondSlot})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)

	result, err = sc.svc.Candidates.Search(ctx, models.CandidateQuery{Date: monday, Time: firstSlot})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Candidates)
}

func TestCandidateServiceWeekendAndInvalidInput(t *testing.T) {
	sc := newScenarioA(t, newFakeStore())
	ctx := context.Background()

	result, err := sc.svc.Candidates.Search(ctx, models.CandidateQuery{Date: "2024-03-09", Time: firstSlot})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)

	for _, q := range []models.CandidateQuery{
		{Date: "03/04/2024", Time: firstSlot},
		{Date: monday, Time: "9:00"},
		{Date: monday, Time: firstSlot, Class: "third"},
		{Day: "sunday", Time: firstSlot},
	} {
		_, err := sc.svc.Candidates.Search(ctx, q)
		require.Error(t, err, "%+v", q)
		assert.Equal(t, appErrors.ErrInvalidFormat.Code, appErrors.FromError(err).Code)
	}

	_, err = sc.svc.Candidates.Search(ctx, models.CandidateQuery{Time: firstSlot})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCandidateServiceFlagsRequestingClassTeacher(t *testing.T) {
	sc := newScenarioA(t, newFakeStore())
	ctx := context.Background()
	_, err := sc.svc.Availability.Recompute(ctx)
	require.NoError(t, err)

	result, err := sc.svc.Candidates.Search(ctx, models.CandidateQuery{Date: monday, Time: firstSlot, Class: "3학년-1반"})
	require.NoError(t, err)
	assert.Equal(t, "3-1", result.Class)
	flagged := 0
	for _, c := range result.Candidates {
		if c.RequestingClassTeacher {
			flagged++
			assert.Equal(t, sc.h31.ID, c.Teacher.ID)
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestSortCandidates(t *testing.T) {
	mk := func(name string, total, month int) models.Candidate {
		return models.Candidate{Teacher: &models.Teacher{Name: name, SubstituteHistory: models.SubstituteHistory{TotalCount: total, ThisMonthCount: month}}}
	}
	candidates := []models.Candidate{mk("choi", 1, 3), mk("Park", 5, 0), mk("ahn", 5, 1)}

	SortCandidates(candidates, SortByName)
	assert.Equal(t, "ahn", candidates[0].Teacher.Name)
	assert.Equal(t, "Park", candidates[2].Teacher.Name)

	SortCandidates(candidates, SortByTotal)
	assert.Equal(t, []string{"ahn", "Park", "choi"}, []string{candidates[0].Teacher.Name, candidates[1].Teacher.Name, candidates[2].Teacher.Name})

	SortCandidates(candidates, SortByThisMonth)
	assert.Equal(t, "choi", candidates[0].Teacher.Name)
}
