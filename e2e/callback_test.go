package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/tunewave/api/internal/model"
)

func callbackBody(taskID string, tracks ...map[string]interface{}) string {
	if tracks == nil {
		// A nil slice marshals as JSON null; an empty track list must be [].
		tracks = []map[string]interface{}{}
	}
	payload := map[string]interface{}{
		"code": 200,
		"msg":  "All generated successfully.",
		"data": map[string]interface{}{
			"task_id": taskID,
			"data":    tracks,
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestCallback_MissingUID(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/callbacks/suno", callbackBody("T1"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	if result["error"] != "Missing UID parameter in callback URL" {
		t.Errorf("unexpected error: %v", result["error"])
	}
}

func TestCallback_MethodNotAllowed(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/callbacks/suno?uid=U1", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusMethodNotAllowed)
}

func TestCallback_InvalidJSON(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", "{not json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	if result["error"] != "Invalid JSON payload" {
		t.Errorf("unexpected error: %v", result["error"])
	}
}

func TestCallback_UpstreamErrorCode(t *testing.T) {
	ta := setupApp(t)

	body := `{"code": 500, "msg": "generation failed", "data": null}`
	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	if result["error"] != "Unexpected code from Suno" {
		t.Errorf("unexpected error: %v", result["error"])
	}
	// The whole payload rides along for debugging
	extra, ok := result["extra"].(map[string]interface{})
	if !ok || extra["msg"] != "generation failed" {
		t.Errorf("expected original payload in extra, got %v", result["extra"])
	}
}

func TestCallback_EmptyTrackList(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", callbackBody("T1"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	if result["error"] != "Track list empty" {
		t.Errorf("unexpected error: %v", result["error"])
	}
}

func TestCallback_SingleTrackDelivery(t *testing.T) {
	ta := setupApp(t)

	body := callbackBody("T1", map[string]interface{}{
		"id":         "track-a",
		"audio_url":  ta.audioSrv.URL + "/ok.mp3",
		"title":      "Evening Rain",
		"duration":   184.5,
		"model_name": "chirp-v4",
		"tags":       "ambient, rain",
	})
	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["success"] != true || result["user_id"] != "U1" || result["task_id"] != "T1" {
		t.Errorf("unexpected response: %v", result)
	}
	if result["processed"].(float64) != 1 || result["successful"].(float64) != 1 {
		t.Errorf("unexpected counts: %v", result)
	}

	results := result["results"].([]interface{})
	first := results[0].(map[string]interface{})
	if first["success"] != true || first["id"] != "track-a" {
		t.Errorf("unexpected outcome: %v", first)
	}
	publicURL, _ := first["publicUrl"].(string)
	if !strings.HasPrefix(publicURL, "https://cdn.test/U1/") || !strings.HasSuffix(publicURL, "_evening_rain_track-a.mp3") {
		t.Errorf("unexpected public URL: %q", publicURL)
	}

	rec, err := ta.tracks.GetTrack(context.Background(), "track-a")
	if err != nil {
		t.Fatalf("expected persisted record: %v", err)
	}
	if rec.UserID != "U1" || rec.Status != model.TrackStatusCompleted || rec.Title != "Evening Rain" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Duration == nil || *rec.Duration != 184.5 {
		t.Errorf("unexpected duration: %v", rec.Duration)
	}

	ta.storage.mu.Lock()
	defer ta.storage.mu.Unlock()
	if len(ta.storage.objects) != 1 {
		t.Errorf("expected one stored blob, got %d", len(ta.storage.objects))
	}
	for _, blob := range ta.storage.objects {
		if len(blob) != 5000 {
			t.Errorf("expected 5000 stored bytes, got %d", len(blob))
		}
	}
}

func TestCallback_DownloadFailureStillAcknowledged(t *testing.T) {
	ta := setupApp(t)

	body := callbackBody("T1",
		map[string]interface{}{"id": "bad", "audio_url": ta.audioSrv.URL + "/missing.mp3", "title": "Gone"},
		map[string]interface{}{"id": "good", "audio_url": ta.audioSrv.URL + "/ok.mp3", "title": "Here"},
	)
	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["successful"].(float64) != 1 || result["failed"].(float64) != 1 {
		t.Errorf("unexpected counts: %v", result)
	}

	results := result["results"].([]interface{})
	bad := results[0].(map[string]interface{})
	if bad["success"] != false || bad["error"] != "download_failed_404" {
		t.Errorf("unexpected failure outcome: %v", bad)
	}
	good := results[1].(map[string]interface{})
	if good["success"] != true {
		t.Errorf("sibling must still succeed: %v", good)
	}
}

func TestCallback_EmptyAudioRejected(t *testing.T) {
	ta := setupApp(t)

	body := callbackBody("T1", map[string]interface{}{
		"id":        "empty",
		"audio_url": ta.audioSrv.URL + "/empty.mp3",
	})
	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	results := result["results"].([]interface{})
	first := results[0].(map[string]interface{})
	if first["error"] != "empty_audio_file" {
		t.Errorf("unexpected outcome: %v", first)
	}
}

func TestCallback_ResolvesPlaceholder(t *testing.T) {
	ta := setupApp(t)

	// Simulate the dispatch-time placeholder row
	if err := ta.tracks.CreatePlaceholder(context.Background(), "T1", "U1", "Pending"); err != nil {
		t.Fatal(err)
	}

	body := callbackBody("T1", map[string]interface{}{
		"id": "track-a", "audio_url": ta.audioSrv.URL + "/ok.mp3", "title": "Done",
	})
	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if _, err := ta.tracks.GetTrack(context.Background(), "T1"); err == nil {
		t.Error("expected placeholder removed after successful delivery")
	}
	if _, err := ta.tracks.GetTrack(context.Background(), "track-a"); err != nil {
		t.Error("expected completed record in place of placeholder")
	}
}

func TestCallback_TotalFailureMarksPlaceholder(t *testing.T) {
	ta := setupApp(t)

	if err := ta.tracks.CreatePlaceholder(context.Background(), "T1", "U1", "Pending"); err != nil {
		t.Fatal(err)
	}

	body := callbackBody("T1", map[string]interface{}{
		"id": "bad", "audio_url": ta.audioSrv.URL + "/missing.mp3",
	})
	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	rec, err := ta.tracks.GetTrack(context.Background(), "T1")
	if err != nil {
		t.Fatal("expected placeholder to survive a failed delivery")
	}
	if rec.Status != model.TrackStatusFailed {
		t.Errorf("placeholder status = %s, want failed", rec.Status)
	}
}

func TestCallback_ManyTracksCountsSum(t *testing.T) {
	ta := setupApp(t)

	var tracks []map[string]interface{}
	for i := 0; i < 6; i++ {
		url := ta.audioSrv.URL + "/ok.mp3"
		if i%3 == 0 {
			url = ta.audioSrv.URL + "/missing.mp3"
		}
		tracks = append(tracks, map[string]interface{}{
			"id":        fmt.Sprintf("tr-%d", i),
			"audio_url": url,
		})
	}

	resp, err := doRequest(ta.app, "POST", "/callbacks/suno?uid=U1", callbackBody("T1", tracks...), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	processed := result["processed"].(float64)
	if result["successful"].(float64)+result["failed"].(float64) != processed {
		t.Errorf("counts must sum to processed: %v", result)
	}
	if int(processed) != len(tracks) {
		t.Errorf("processed = %v, want %d", processed, len(tracks))
	}
}
