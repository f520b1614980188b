package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/2beens/gymtrack/internal/exercises"
	"github.com/2beens/gymtrack/internal/resttimer"
	"github.com/2beens/gymtrack/internal/sessions"
	"github.com/2beens/gymtrack/internal/splits"
	"github.com/2beens/gymtrack/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) startSessionRequest(
	ctx context.Context,
	dayID int,
	expectedStatusCode int,
) *sessions.ActiveSnapshot {
	startJson, err := json.Marshal(sessions.StartSessionRequest{DayID: dayID})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/start", serverEndpoint),
		bytes.NewReader(startJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var snapshot sessions.ActiveSnapshot
	require.NoError(s.T(), json.Unmarshal(respBytes, &snapshot))
	return &snapshot
}

func (s *IntegrationTestSuite) currentSessionRequest(
	ctx context.Context,
	expectedStatusCode int,
) *sessions.ActiveSnapshot {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/sessions/current", serverEndpoint),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var snapshot sessions.ActiveSnapshot
	require.NoError(s.T(), json.Unmarshal(respBytes, &snapshot))
	return &snapshot
}

func (s *IntegrationTestSuite) logSetRequest(
	ctx context.Context,
	params sessions.LogSetParams,
	expectedStatusCode int,
) *sessions.LogSetResponse {
	paramsJson, err := json.Marshal(params)
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/sets", serverEndpoint),
		bytes.NewReader(paramsJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusCreated {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var logSetResp sessions.LogSetResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &logSetResp))
	return &logSetResp
}

func (s *IntegrationTestSuite) editSetRequest(
	ctx context.Context,
	setNumber int,
	params sessions.LogSetParams,
	expectedStatusCode int,
) *sessions.SetLog {
	paramsJson, err := json.Marshal(params)
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"PUT", fmt.Sprintf("%s/sessions/sets/%d", serverEndpoint, setNumber),
		bytes.NewReader(paramsJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var set sessions.SetLog
	require.NoError(s.T(), json.Unmarshal(respBytes, &set))
	return &set
}

func (s *IntegrationTestSuite) deleteSetRequest(
	ctx context.Context,
	setNumber int,
	expectedStatusCode int,
) {
	req, err := http.NewRequestWithContext(
		ctx,
		"DELETE", fmt.Sprintf("%s/sessions/sets/%d", serverEndpoint, setNumber),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var deleteResp sessions.DeleteSetResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &deleteResp))
	require.Equal(s.T(), setNumber, deleteResp.DeletedSetNumber)
}

func (s *IntegrationTestSuite) duplicateLastSetRequest(
	ctx context.Context,
	expectedStatusCode int,
) *sessions.PendingSet {
	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/sets/duplicate-last", serverEndpoint),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var pending sessions.PendingSet
	require.NoError(s.T(), json.Unmarshal(respBytes, &pending))
	return &pending
}

// sessionNavRequest drives the exercise cursor, path is one of "next",
// "previous" or "goto/{index}".
func (s *IntegrationTestSuite) sessionNavRequest(ctx context.Context, path string) *sessions.ActiveSnapshot {
	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/%s", serverEndpoint, path),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var snapshot sessions.ActiveSnapshot
	require.NoError(s.T(), json.Unmarshal(respBytes, &snapshot))
	return &snapshot
}

func (s *IntegrationTestSuite) completeSessionRequest(
	ctx context.Context,
	notes string,
	expectedStatusCode int,
) *sessions.Summary {
	completeJson, err := json.Marshal(sessions.CompleteSessionRequest{Notes: notes})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/complete", serverEndpoint),
		bytes.NewReader(completeJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var summary sessions.Summary
	require.NoError(s.T(), json.Unmarshal(respBytes, &summary))
	return &summary
}

func (s *IntegrationTestSuite) abandonSessionRequest(
	ctx context.Context,
	saveProgress bool,
	expectedStatusCode int,
) {
	abandonJson, err := json.Marshal(sessions.AbandonSessionRequest{SaveProgress: saveProgress})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/abandon", serverEndpoint),
		bytes.NewReader(abandonJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var abandonResp sessions.AbandonSessionResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &abandonResp))
	require.Equal(s.T(), saveProgress, abandonResp.Saved)
}

func (s *IntegrationTestSuite) timerStateRequest(ctx context.Context) sessions.TimerResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/sessions/timer", serverEndpoint),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var timerResp sessions.TimerResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &timerResp))
	return timerResp
}

// timerActionRequest hits one of the bodyless timer controls: "pause",
// "resume" or "skip".
func (s *IntegrationTestSuite) timerActionRequest(ctx context.Context, action string) sessions.TimerResponse {
	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/timer/%s", serverEndpoint, action),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var timerResp sessions.TimerResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &timerResp))
	return timerResp
}

func (s *IntegrationTestSuite) addTimerTimeRequest(
	ctx context.Context,
	seconds int,
	expectedStatusCode int,
) *sessions.TimerResponse {
	addJson, err := json.Marshal(sessions.AddTimerTimeRequest{Seconds: seconds})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/sessions/timer/add", serverEndpoint),
		bytes.NewReader(addJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var timerResp sessions.TimerResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &timerResp))
	return &timerResp
}

func (s *IntegrationTestSuite) getSessionRequest(
	ctx context.Context,
	id int,
	expectedStatusCode int,
) *sessions.SessionDetail {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/sessions/%d", serverEndpoint, id),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedStatusCode, resp.StatusCode)
	defer resp.Body.Close()

	if expectedStatusCode != http.StatusOK {
		return nil
	}

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var detail sessions.SessionDetail
	require.NoError(s.T(), json.Unmarshal(respBytes, &detail))
	return &detail
}

func (s *IntegrationTestSuite) listSessionsRequest(
	ctx context.Context,
	page, size int,
	excludeTesting bool,
) sessions.ListResponse {
	listURL := fmt.Sprintf("%s/sessions/list/page/%d/size/%d", serverEndpoint, page, size)
	if excludeTesting {
		listURL += "?exclude_testing=true"
	}

	req, err := http.NewRequestWithContext(ctx, "GET", listURL, nil)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var listResp sessions.ListResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &listResp))
	return listResp
}

func (s *IntegrationTestSuite) streakRequest(ctx context.Context, tz string) stats.Streak {
	urlVals := url.Values{}
	if tz != "" {
		urlVals.Add("tz", tz)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/stats/streak?%s", serverEndpoint, urlVals.Encode()),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var streakResp stats.Streak
	require.NoError(s.T(), json.Unmarshal(respBytes, &streakResp))
	return streakResp
}

func (s *IntegrationTestSuite) volumeRequest(ctx context.Context, from, to string) stats.VolumePeriod {
	urlVals := url.Values{}
	urlVals.Add("from", from)
	if to != "" {
		urlVals.Add("to", to)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/stats/volume?%s", serverEndpoint, urlVals.Encode()),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var volumeResp stats.VolumePeriod
	require.NoError(s.T(), json.Unmarshal(respBytes, &volumeResp))
	return volumeResp
}

func (s *IntegrationTestSuite) exerciseRecordsRequest(ctx context.Context, exerciseID int) stats.ExerciseRecords {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/stats/exercise/%d/records", serverEndpoint, exerciseID),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var recordsResp stats.ExerciseRecords
	require.NoError(s.T(), json.Unmarshal(respBytes, &recordsResp))
	return recordsResp
}

func (s *IntegrationTestSuite) exerciseProgressRequest(ctx context.Context, exerciseID int) stats.ExerciseProgress {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/stats/exercise/%d/progress", serverEndpoint, exerciseID),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Authorization", testIOSAppSecret)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)

	var progressResp stats.ExerciseProgress
	require.NoError(s.T(), json.Unmarshal(respBytes, &progressResp))
	return progressResp
}

func (s *IntegrationTestSuite) TestSessions() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.dbCleanup(context.Background())

	benchPress := s.newExerciseRequest(ctx, exercises.Exercise{
		Name:         "Bench Press",
		MuscleGroup:  "chest",
		ExerciseType: exercises.TypeWeightAndReps,
		IsCustom:     true,
	})
	squat := s.newExerciseRequest(ctx, exercises.Exercise{
		Name:         "Squat",
		MuscleGroup:  "legs",
		ExerciseType: exercises.TypeWeightAndReps,
		IsCustom:     true,
	})

	addedSplit := s.newSplitRequest(ctx, splits.Split{
		Name:      "Strength Block",
		SplitType: splits.SplitTypeUpperLower,
		Days: []splits.Day{
			{
				Name:        "Bench Day",
				Weekdays:    []int{1, 4},
				RestSeconds: 90,
				Exercises: []splits.PlannedExercise{
					{
						ExerciseID:    benchPress.ID,
						TargetSets:    4,
						TargetRepsMin: intPtr(6),
						TargetRepsMax: intPtr(10),
					},
				},
			},
			{
				Name:        "Squat Day",
				Weekdays:    []int{2, 5},
				RestSeconds: 120,
				Exercises: []splits.PlannedExercise{
					{ExerciseID: squat.ID, TargetSets: 3},
					{ExerciseID: benchPress.ID, TargetSets: 3},
				},
			},
		},
	})
	require.Len(s.T(), addedSplit.Days, 2)
	benchDay := addedSplit.Days[0]
	squatDay := addedSplit.Days[1]

	// shared across the subtests below, they run in order
	var (
		sessionAID     int
		sessionBID     int
		squatSessionID int
	)

	s.T().Run("no active session", func(t *testing.T) {
		req, err := http.NewRequestWithContext(
			ctx,
			"GET", fmt.Sprintf("%s/sessions/current", serverEndpoint),
			nil,
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("Authorization", testIOSAppSecret)
		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		respBytes, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "no active session", strings.TrimSpace(string(respBytes)))

		s.completeSessionRequest(ctx, "", http.StatusConflict)
		s.abandonSessionRequest(ctx, false, http.StatusConflict)
		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 100, Reps: 8}, http.StatusConflict)
		s.duplicateLastSetRequest(ctx, http.StatusConflict)

		timer := s.timerStateRequest(ctx)
		assert.Equal(t, resttimer.StateIdle, timer.State)
	})

	s.T().Run("start needs a known day", func(t *testing.T) {
		s.startSessionRequest(ctx, 0, http.StatusBadRequest)
		s.startSessionRequest(ctx, 999999, http.StatusNotFound)

		// json body without the json content type
		req, err := http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/sessions/start", serverEndpoint),
			strings.NewReader(fmt.Sprintf(`{"dayId":%d}`, benchDay.ID)),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("Authorization", testIOSAppSecret)
		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	s.T().Run("first workout and its summary", func(t *testing.T) {
		snapshot := s.startSessionRequest(ctx, benchDay.ID, http.StatusOK)
		require.NotNil(t, snapshot)
		require.True(t, snapshot.Session.ID > 0)
		sessionAID = snapshot.Session.ID

		assert.False(t, snapshot.Resumed)
		assert.Equal(t, benchDay.ID, snapshot.Session.DayID)
		assert.Equal(t, "Bench Day", snapshot.Session.DayName)
		assert.Equal(t, 0, snapshot.CurrentExercise)
		require.Len(t, snapshot.Plan, 1)
		require.Len(t, snapshot.Logs, 1)
		assert.Equal(t, "Bench Press", snapshot.Logs[0].ExerciseName)
		assert.Empty(t, snapshot.Logs[0].Sets)

		current := s.currentSessionRequest(ctx, http.StatusOK)
		require.NotNil(t, current)
		assert.Equal(t, sessionAID, current.Session.ID)

		// the very first working set of an exercise is a record by itself
		logResp := s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 90, Reps: 8}, http.StatusCreated)
		require.NotNil(t, logResp)
		assert.Equal(t, 1, logResp.Set.SetNumber)
		assert.InDelta(t, 90, logResp.Set.WeightKg, 0.001)
		require.NotNil(t, logResp.Record)
		assert.True(t, logResp.Record.IsRecord)
		assert.InDelta(t, 114, logResp.Record.CandidateOneRM, 0.001)
		assert.InDelta(t, 0, logResp.Record.PriorBestOneRM, 0.001)

		// one set in, three to go, the rest countdown is on
		timer := s.timerStateRequest(ctx)
		assert.Equal(t, resttimer.StateRunning, timer.State)
		assert.InDelta(t, 90, timer.TotalSeconds, 0.001)
		assert.True(t, timer.RemainingSeconds > 0)

		summary := s.completeSessionRequest(ctx, "felt strong", http.StatusOK)
		require.NotNil(t, summary)
		assert.Equal(t, sessionAID, summary.SessionID)
		assert.Equal(t, "Bench Day", summary.DayName)
		assert.InDelta(t, 720, summary.TotalVolume, 0.001)
		assert.Equal(t, 1, summary.WorkingSets)
		assert.Equal(t, 1, summary.ExercisesLogged)
		assert.Len(t, summary.Records, 1)
		assert.Equal(t, "felt strong", summary.Notes)
		assert.True(t, summary.EndedAt.After(summary.StartedAt))

		// completing is terminal
		s.completeSessionRequest(ctx, "", http.StatusConflict)
		s.currentSessionRequest(ctx, http.StatusNotFound)
		assert.Equal(t, resttimer.StateIdle, s.timerStateRequest(ctx).State)
	})

	s.T().Run("records fall during the second workout", func(t *testing.T) {
		snapshot := s.startSessionRequest(ctx, benchDay.ID, http.StatusOK)
		require.NotNil(t, snapshot)
		assert.False(t, snapshot.Resumed)
		require.NotEqual(t, sessionAID, snapshot.Session.ID)
		sessionBID = snapshot.Session.ID

		// warm-ups score no records
		warmupResp := s.logSetRequest(
			ctx,
			sessions.LogSetParams{WeightKg: 60, Reps: 10, IsWarmup: true},
			http.StatusCreated,
		)
		require.NotNil(t, warmupResp)
		assert.True(t, warmupResp.Set.IsWarmup)
		assert.Nil(t, warmupResp.Record)

		secondResp := s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 100, Reps: 8}, http.StatusCreated)
		require.NotNil(t, secondResp)
		require.NotNil(t, secondResp.Record)
		assert.True(t, secondResp.Record.IsRecord)
		assert.InDelta(t, 126.6667, secondResp.Record.CandidateOneRM, 0.001)
		assert.InDelta(t, 114, secondResp.Record.PriorBestOneRM, 0.001)
		assert.InDelta(t, 12.6667, secondResp.Record.Improvement, 0.001)

		thirdResp := s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 105, Reps: 8}, http.StatusCreated)
		require.NotNil(t, thirdResp)
		require.NotNil(t, thirdResp.Record)
		assert.True(t, thirdResp.Record.IsRecord)
		assert.InDelta(t, 133, thirdResp.Record.CandidateOneRM, 0.001)
		assert.InDelta(t, 126.6667, thirdResp.Record.PriorBestOneRM, 0.001)
		assert.InDelta(t, 6.3333, thirdResp.Record.Improvement, 0.001)

		// repeating an earlier top set beats nothing
		fourthResp := s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 100, Reps: 8}, http.StatusCreated)
		require.NotNil(t, fourthResp)
		require.NotNil(t, fourthResp.Record)
		assert.False(t, fourthResp.Record.IsRecord)
		assert.InDelta(t, 133, fourthResp.Record.PriorBestOneRM, 0.001)

		current := s.currentSessionRequest(ctx, http.StatusOK)
		require.NotNil(t, current)
		require.Len(t, current.Logs[0].Sets, 4)
		for i, set := range current.Logs[0].Sets {
			assert.Equal(t, i+1, set.SetNumber)
		}

		// the pending buffer copies the numbers of the last set, not the flags
		pending := s.duplicateLastSetRequest(ctx, http.StatusOK)
		require.NotNil(t, pending)
		assert.InDelta(t, 100, pending.WeightKg, 0.001)
		assert.Equal(t, 8, pending.Reps)
		current = s.currentSessionRequest(ctx, http.StatusOK)
		require.NotNil(t, current)
		assert.InDelta(t, 100, current.Pending.WeightKg, 0.001)

		// rubbish sets are refused and change nothing
		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: -5, Reps: 8}, http.StatusBadRequest)
		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 100, Reps: 0}, http.StatusBadRequest)
		s.logSetRequest(
			ctx,
			sessions.LogSetParams{WeightKg: 100, Reps: 8, IsWarmup: true, IsDropset: true},
			http.StatusBadRequest,
		)
		badRPE := 11.0
		s.logSetRequest(
			ctx,
			sessions.LogSetParams{WeightKg: 100, Reps: 8, RPE: &badRPE},
			http.StatusBadRequest,
		)

		summary := s.completeSessionRequest(ctx, "", http.StatusOK)
		require.NotNil(t, summary)
		assert.InDelta(t, 2440, summary.TotalVolume, 0.001)
		assert.Equal(t, 3, summary.WorkingSets)
		assert.Equal(t, 1, summary.ExercisesLogged)
		require.Len(t, summary.Records, 2)
		assert.Equal(t, 2, summary.Records[0].SetNumber)
		assert.InDelta(t, 100, summary.Records[0].WeightKg, 0.001)
		assert.Equal(t, 3, summary.Records[1].SetNumber)
		assert.InDelta(t, 105, summary.Records[1].WeightKg, 0.001)
		assert.InDelta(t, 133, summary.Records[1].Result.CandidateOneRM, 0.001)
	})

	s.T().Run("stats cover the whole history", func(t *testing.T) {
		streakResp := s.streakRequest(ctx, "UTC")
		assert.Equal(t, "UTC", streakResp.Timezone)
		assert.GreaterOrEqual(t, streakResp.Days, 1)

		today := time.Now().UTC().Format("2006-01-02")
		volumeResp := s.volumeRequest(ctx, today, "")
		assert.InDelta(t, 3160, volumeResp.TotalVolume, 0.001)

		recordsResp := s.exerciseRecordsRequest(ctx, benchPress.ID)
		assert.Equal(t, benchPress.ID, recordsResp.ExerciseID)
		require.NotNil(t, recordsResp.Best)
		assert.InDelta(t, 133, recordsResp.Best.OneRM, 0.001)
		assert.InDelta(t, 105, recordsResp.Best.WeightKg, 0.001)
		assert.Equal(t, 8, recordsResp.Best.Reps)
		assert.InDelta(t, 105, recordsResp.WeightAtReps[8], 0.001)
		_, warmupTracked := recordsResp.WeightAtReps[10]
		assert.False(t, warmupTracked, "warm-up sets must stay out of the records")

		progressResp := s.exerciseProgressRequest(ctx, benchPress.ID)
		totalSets := 0
		totalVolume := 0.0
		bestOneRM := 0.0
		for _, day := range progressResp.Days {
			totalSets += day.Sets
			totalVolume += day.Volume
			if day.BestOneRM > bestOneRM {
				bestOneRM = day.BestOneRM
			}
		}
		assert.Equal(t, 5, totalSets)
		assert.InDelta(t, 3160, totalVolume, 0.001)
		assert.InDelta(t, 133, bestOneRM, 0.001)
	})

	s.T().Run("navigation, edits and a discarded workout", func(t *testing.T) {
		snapshot := s.startSessionRequest(ctx, squatDay.ID, http.StatusOK)
		require.NotNil(t, snapshot)
		assert.False(t, snapshot.Resumed)
		require.Len(t, snapshot.Plan, 2)
		assert.Equal(t, 0, snapshot.CurrentExercise)

		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 80, Reps: 5}, http.StatusCreated)

		edited := s.editSetRequest(ctx, 1, sessions.LogSetParams{WeightKg: 82.5, Reps: 5}, http.StatusOK)
		require.NotNil(t, edited)
		assert.Equal(t, 1, edited.SetNumber)
		assert.InDelta(t, 82.5, edited.WeightKg, 0.001)

		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 85, Reps: 5}, http.StatusCreated)
		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 90, Reps: 5}, http.StatusCreated)

		// dropping the middle set renumbers the survivors
		s.deleteSetRequest(ctx, 2, http.StatusOK)
		current := s.currentSessionRequest(ctx, http.StatusOK)
		require.NotNil(t, current)
		require.Len(t, current.Logs[0].Sets, 2)
		assert.Equal(t, 1, current.Logs[0].Sets[0].SetNumber)
		assert.InDelta(t, 82.5, current.Logs[0].Sets[0].WeightKg, 0.001)
		assert.Equal(t, 2, current.Logs[0].Sets[1].SetNumber)
		assert.InDelta(t, 90, current.Logs[0].Sets[1].WeightKg, 0.001)

		s.deleteSetRequest(ctx, 7, http.StatusNotFound)
		s.editSetRequest(ctx, 7, sessions.LogSetParams{WeightKg: 1, Reps: 1}, http.StatusNotFound)

		// cursor moves are clamped to the plan
		next := s.sessionNavRequest(ctx, "next")
		assert.Equal(t, 1, next.CurrentExercise)
		assert.Equal(t, "Bench Press", next.Logs[1].ExerciseName)

		// nothing logged for the bench yet, nothing to duplicate
		s.duplicateLastSetRequest(ctx, http.StatusBadRequest)

		next = s.sessionNavRequest(ctx, "next")
		assert.Equal(t, 1, next.CurrentExercise)

		previous := s.sessionNavRequest(ctx, "previous")
		assert.Equal(t, 0, previous.CurrentExercise)
		previous = s.sessionNavRequest(ctx, "previous")
		assert.Equal(t, 0, previous.CurrentExercise)

		jumped := s.sessionNavRequest(ctx, "goto/99")
		assert.Equal(t, 1, jumped.CurrentExercise)
		jumped = s.sessionNavRequest(ctx, "goto/0")
		assert.Equal(t, 0, jumped.CurrentExercise)

		// starting the same day again resumes in place
		resumed := s.startSessionRequest(ctx, squatDay.ID, http.StatusOK)
		require.NotNil(t, resumed)
		assert.True(t, resumed.Resumed)
		assert.Equal(t, snapshot.Session.ID, resumed.Session.ID)
		require.Len(t, resumed.Logs[0].Sets, 2)

		// a different day has to wait
		s.startSessionRequest(ctx, benchDay.ID, http.StatusConflict)

		// discarding wipes the session and everything logged
		s.abandonSessionRequest(ctx, false, http.StatusOK)
		s.currentSessionRequest(ctx, http.StatusNotFound)
		s.getSessionRequest(ctx, snapshot.Session.ID, http.StatusNotFound)
		assert.Equal(t, resttimer.StateIdle, s.timerStateRequest(ctx).State)
	})

	s.T().Run("abandon can keep the progress", func(t *testing.T) {
		snapshot := s.startSessionRequest(ctx, squatDay.ID, http.StatusOK)
		require.NotNil(t, snapshot)
		squatSessionID = snapshot.Session.ID

		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 100, Reps: 3}, http.StatusCreated)

		s.abandonSessionRequest(ctx, true, http.StatusOK)
		s.currentSessionRequest(ctx, http.StatusNotFound)

		detail := s.getSessionRequest(ctx, squatSessionID, http.StatusOK)
		require.NotNil(t, detail)
		require.NotNil(t, detail.EndedAt)
		assert.Equal(t, "Squat Day", detail.DayName)
		require.Len(t, detail.ExerciseLogs, 1)
		assert.Equal(t, "Squat", detail.ExerciseLogs[0].ExerciseName)
		require.Len(t, detail.ExerciseLogs[0].Sets, 1)
		assert.InDelta(t, 100, detail.ExerciseLogs[0].Sets[0].WeightKg, 0.001)
	})

	s.T().Run("rest timer honors pauses and skips", func(t *testing.T) {
		s.startSessionRequest(ctx, benchDay.ID, http.StatusOK)
		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 60, Reps: 5}, http.StatusCreated)

		timer := s.timerStateRequest(ctx)
		require.Equal(t, resttimer.StateRunning, timer.State)
		assert.InDelta(t, 90, timer.TotalSeconds, 0.001)
		assert.True(t, timer.RemainingSeconds > 0)
		assert.True(t, timer.RemainingSeconds <= 90)

		paused := s.timerActionRequest(ctx, "pause")
		require.Equal(t, resttimer.StatePaused, paused.State)
		frozen := paused.RemainingSeconds
		time.Sleep(1100 * time.Millisecond)
		stillPaused := s.timerStateRequest(ctx)
		assert.Equal(t, resttimer.StatePaused, stillPaused.State)
		assert.InDelta(t, frozen, stillPaused.RemainingSeconds, 0.001)

		resumed := s.timerActionRequest(ctx, "resume")
		assert.Equal(t, resttimer.StateRunning, resumed.State)

		// extra rest pushes the countdown past the original total
		extended := s.addTimerTimeRequest(ctx, 60, http.StatusOK)
		require.NotNil(t, extended)
		assert.Equal(t, resttimer.StateRunning, extended.State)
		assert.InDelta(t, 90, extended.TotalSeconds, 0.001)
		assert.True(t, extended.RemainingSeconds > extended.TotalSeconds)

		s.addTimerTimeRequest(ctx, 0, http.StatusBadRequest)

		skipped := s.timerActionRequest(ctx, "skip")
		assert.Equal(t, resttimer.StateCompleted, skipped.State)
		assert.InDelta(t, 0, skipped.RemainingSeconds, 0.001)
		assert.InDelta(t, 90, skipped.TotalSeconds, 0.001)
		assert.InDelta(t, 1, skipped.Progress, 0.001)

		// pause and resume do nothing once completed
		assert.Equal(t, resttimer.StateCompleted, s.timerActionRequest(ctx, "pause").State)
		assert.Equal(t, resttimer.StateCompleted, s.timerActionRequest(ctx, "resume").State)

		// the next set brings the countdown back
		s.logSetRequest(ctx, sessions.LogSetParams{WeightKg: 60, Reps: 5}, http.StatusCreated)
		assert.Equal(t, resttimer.StateRunning, s.timerStateRequest(ctx).State)

		s.abandonSessionRequest(ctx, false, http.StatusOK)
		assert.Equal(t, resttimer.StateIdle, s.timerStateRequest(ctx).State)
	})

	s.T().Run("history is paged and testing data can be filtered", func(t *testing.T) {
		// two completed bench workouts plus the kept squat one
		listResp := s.listSessionsRequest(ctx, 1, 10, false)
		require.Equal(t, 3, listResp.Total)
		require.Len(t, listResp.Sessions, 3)
		assert.Equal(t, squatSessionID, listResp.Sessions[0].ID)
		assert.Equal(t, sessionBID, listResp.Sessions[1].ID)
		assert.Equal(t, sessionAID, listResp.Sessions[2].ID)

		pageResp := s.listSessionsRequest(ctx, 1, 2, false)
		assert.Equal(t, 3, pageResp.Total)
		require.Len(t, pageResp.Sessions, 2)
		assert.Equal(t, squatSessionID, pageResp.Sessions[0].ID)

		detail := s.getSessionRequest(ctx, sessionBID, http.StatusOK)
		require.NotNil(t, detail)
		assert.Equal(t, "Bench Day", detail.DayName)
		require.Len(t, detail.ExerciseLogs, 1)
		require.Len(t, detail.ExerciseLogs[0].Sets, 4)
		assert.True(t, detail.ExerciseLogs[0].Sets[0].IsWarmup)

		s.getSessionRequest(ctx, 999999, http.StatusNotFound)

		// rows seeded with testing metadata are filtered on demand
		_, err := s.dbPool.Exec(context.Background(), `
			INSERT INTO workout_session (day_id, started_at, ended_at, notes, metadata)
			VALUES ($1, NOW() - INTERVAL '2 hours', NOW() - INTERVAL '1 hour', '', '{"testing": "true"}'::jsonb)`,
			benchDay.ID,
		)
		require.NoError(t, err)

		withTesting := s.listSessionsRequest(ctx, 1, 10, false)
		assert.Equal(t, 4, withTesting.Total)
		withoutTesting := s.listSessionsRequest(ctx, 1, 10, true)
		assert.Equal(t, 3, withoutTesting.Total)
	})

	s.T().Run("mcp asks for its own secret", func(t *testing.T) {
		req, err := http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/mcp", serverEndpoint),
			strings.NewReader("{}"),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		respBytes, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "no can do", strings.TrimSpace(string(respBytes)))

		req, err = http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/mcp", serverEndpoint),
			strings.NewReader("{}"),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-MCP-Secret", testMCPSecret)

		resp, err = s.httpClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
