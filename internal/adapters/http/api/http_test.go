package api_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pokearena/scoresync/internal/adapters/http/api"
	"github.com/pokearena/scoresync/internal/app"
	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/signature"
	"github.com/pokearena/scoresync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	testToken  = "arena-shared-token"
	testSecret = "fedcba9876543210fedcba9876543210"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	svc := app.New(
		app.WithSharedToken(testToken),
		app.WithWorkerCount(2),
		app.WithQueueSize(64),
	)
	if err := svc.Start(t.Context()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc, 100).Register(mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Board-Token", token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func nameBody(player, mode string, rounds, kos, marker int64) map[string]any {
	return map[string]any{
		"player": player,
		"mode":   mode,
		"rounds": rounds,
		"kos":    kos,
		"marker": marker,
	}
}

func signedDeviceBody(uid, player string, rounds, seq int64) map[string]any {
	sub := model.Submission{
		Scheme:   model.SchemeDevice,
		UID:      uid,
		Player:   player,
		Mode:     model.ModeDelta,
		Counters: model.Counters{Rounds: rounds},
		Marker:   seq,
		Secret:   testSecret,
	}
	return map[string]any{
		"uid":    uid,
		"player": player,
		"mode":   "delta",
		"rounds": rounds,
		"marker": seq,
		"secret": testSecret,
		"tag":    signature.Tag(testSecret, sub),
	}
}

func TestPostSubmissionJSON(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		mux := newTestMux(t)

		Convey("When a valid name-scheme submission arrives", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions", testToken,
				nameBody("Trong", "set", 5, 2, 100))
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Applied   bool `json:"applied"`
				Duplicate bool `json:"duplicate"`
				Aggregate struct {
					Rounds int64 `json:"rounds"`
					KOs    int64 `json:"kos"`
				} `json:"aggregate"`
			}
			decodeBody(t, rec, &resp)
			So(resp.Applied, ShouldBeTrue)
			So(resp.Aggregate.Rounds, ShouldEqual, 5)

			Convey("Then replaying the same marker is a 200 no-op ack", func() {
				rec := doJSON(mux, http.MethodPost, "/submissions", testToken,
					nameBody("Trong", "delta", 9, 9, 100))
				So(rec.Code, ShouldEqual, http.StatusOK)
				decodeBody(t, rec, &resp)
				So(resp.Applied, ShouldBeFalse)
				So(resp.Duplicate, ShouldBeTrue)
				So(resp.Aggregate.Rounds, ShouldEqual, 5)
			})

			Convey("Then an older marker is rejected as stale", func() {
				rec := doJSON(mux, http.MethodPost, "/submissions", testToken,
					nameBody("Trong", "set", 1, 0, 99))
				So(rec.Code, ShouldEqual, http.StatusConflict)

				var errResp struct {
					Code string `json:"code"`
				}
				decodeBody(t, rec, &errResp)
				So(errResp.Code, ShouldEqual, "stale")
			})
		})

		Convey("When the shared token is wrong", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions", "nope",
				nameBody("Trong", "set", 5, 2, 100))
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)

			var errResp struct {
				Code string `json:"code"`
			}
			decodeBody(t, rec, &errResp)
			So(errResp.Code, ShouldEqual, "unauthorized")
		})

		Convey("When a counter is negative", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions", testToken,
				nameBody("Trong", "set", -1, 0, 100))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)

			var errResp struct {
				Code string `json:"code"`
			}
			decodeBody(t, rec, &errResp)
			So(errResp.Code, ShouldEqual, "validation")
		})

		Convey("When the body is not JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader("not json"))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestPostSubmissionDeviceScheme(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		mux := newTestMux(t)

		Convey("When a signed device submission arrives", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions", "",
				signedDeviceBody("dev-1", "Lan", 3, 1))
			So(rec.Code, ShouldEqual, http.StatusOK)

			Convey("Then a tampered field breaks the tag", func() {
				body := signedDeviceBody("dev-1", "Lan", 3, 2)
				body["rounds"] = int64(99)
				rec := doJSON(mux, http.MethodPost, "/submissions", "", body)
				So(rec.Code, ShouldEqual, http.StatusUnauthorized)

				var errResp struct {
					Code string `json:"code"`
				}
				decodeBody(t, rec, &errResp)
				So(errResp.Code, ShouldEqual, "bad_signature")
			})
		})

		Convey("When the uid is missing for an explicit device scheme", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions", "",
				map[string]any{"scheme": "device", "player": "Lan", "mode": "delta", "marker": 1})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestPostSubmissionForm(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		mux := newTestMux(t)

		Convey("When a urlencoded form submission arrives", func() {
			form := url.Values{
				"player": {"Mai"},
				"mode":   {"set"},
				"rounds": {"4"},
				"kos":    {"1"},
				"marker": {"10"},
				"token":  {testToken},
			}
			req := httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When a numeric field is malformed", func() {
			form := url.Values{
				"player": {"Mai"},
				"mode":   {"set"},
				"rounds": {"four"},
				"marker": {"10"},
				"token":  {testToken},
			}
			req := httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func uploadRequest(t *testing.T, target string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("scores", "scores.json")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPostSubmissionUpload(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		mux := newTestMux(t)

		raw, err := json.Marshal(signedDeviceBody("dev-up", "Lan", 2, 1))
		So(err, ShouldBeNil)

		Convey("When the upload carries raw JSON", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, uploadRequest(t, "/submissions", raw))
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the upload carries base64-wrapped JSON", func() {
			raw2, err := json.Marshal(signedDeviceBody("dev-up", "Lan", 2, 2))
			So(err, ShouldBeNil)
			wrapped := []byte(base64.StdEncoding.EncodeToString(raw2))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, uploadRequest(t, "/submissions", wrapped))
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the upload is neither JSON nor base64", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, uploadRequest(t, "/submissions", []byte("!!not a payload!!")))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestPostBulk(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		mux := newTestMux(t)

		Convey("When a batch with one invalid item is posted", func() {
			batch := map[string]any{"submissions": []map[string]any{
				nameBody("Lan", "delta", 1, 0, 1),
				nameBody("Lan", "delta", -1, 0, 2),
				nameBody("Lan", "delta", 1, 0, 3),
			}}
			rec := doJSON(mux, http.MethodPost, "/submissions/bulk", testToken, batch)
			So(rec.Code, ShouldEqual, http.StatusAccepted)

			var resp struct {
				Accepted int `json:"accepted"`
				Rejected int `json:"rejected"`
				Results  []struct {
					Index  int    `json:"index"`
					Status string `json:"status"`
					Code   string `json:"code"`
				} `json:"results"`
			}
			decodeBody(t, rec, &resp)
			So(resp.Accepted, ShouldEqual, 2)
			So(resp.Rejected, ShouldEqual, 1)
			So(resp.Results[1].Status, ShouldEqual, "rejected")
			So(resp.Results[1].Code, ShouldEqual, "validation")

			Convey("Then the accepted deltas land in the background", func() {
				var rounds int64
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					rec := doJSON(mux, http.MethodGet, "/scores?scheme=name", "", nil)
					So(rec.Code, ShouldEqual, http.StatusOK)
					var scores struct {
						Rows []struct {
							Rounds int64 `json:"rounds"`
						} `json:"rows"`
					}
					decodeBody(t, rec, &scores)
					if len(scores.Rows) == 1 {
						rounds = scores.Rows[0].Rounds
						if rounds == 2 {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(rounds, ShouldEqual, 2)
			})
		})

		Convey("When the batch is empty", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions/bulk", testToken,
				map[string]any{"submissions": []map[string]any{}})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the batch is a bare JSON array", func() {
			rec := doJSON(mux, http.MethodPost, "/submissions/bulk", testToken,
				[]map[string]any{nameBody("Mai", "set", 3, 0, 1)})
			So(rec.Code, ShouldEqual, http.StatusAccepted)
		})
	})
}

func TestGetBoard(t *testing.T) {
	Convey("Given stored scores under both schemes", t, func() {
		mux := newTestMux(t)

		So(doJSON(mux, http.MethodPost, "/submissions", testToken,
			nameBody("Lan", "set", 3, 1, 100)).Code, ShouldEqual, http.StatusOK)
		So(doJSON(mux, http.MethodPost, "/submissions", testToken,
			nameBody("Trong", "set", 10, 2, 100)).Code, ShouldEqual, http.StatusOK)
		So(doJSON(mux, http.MethodPost, "/submissions", "",
			signedDeviceBody("lan-phone", "lan", 4, 1)).Code, ShouldEqual, http.StatusOK)

		Convey("When the board is fetched", func() {
			rec := doJSON(mux, http.MethodGet, "/board", "", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Entries []struct {
					Rank   int    `json:"rank"`
					Player string `json:"player"`
					Rounds int64  `json:"rounds"`
					KOs    int64  `json:"kos"`
				} `json:"entries"`
				Count int `json:"count"`
			}
			decodeBody(t, rec, &resp)
			So(resp.Count, ShouldEqual, 2)
			So(resp.Entries[0].Player, ShouldEqual, "Trong")
			So(resp.Entries[1].Rounds, ShouldEqual, 7) // name + device rows merged

			Convey("Then a limit caps the entries", func() {
				rec := doJSON(mux, http.MethodGet, "/board?limit=1", "", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				decodeBody(t, rec, &resp)
				So(resp.Count, ShouldEqual, 1)
			})
		})

		Convey("When the limit is malformed", func() {
			So(doJSON(mux, http.MethodGet, "/board?limit=zero", "", nil).Code,
				ShouldEqual, http.StatusBadRequest)
		})

		Convey("When scores are fetched per scheme", func() {
			rec := doJSON(mux, http.MethodGet, "/scores?scheme=device", "", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Rows []struct {
					Key string `json:"key"`
				} `json:"rows"`
			}
			decodeBody(t, rec, &resp)
			So(resp.Rows, ShouldHaveLength, 1)
			So(resp.Rows[0].Key, ShouldEqual, "lan-phone")
		})

		Convey("When the scheme is unknown", func() {
			So(doJSON(mux, http.MethodGet, "/scores?scheme=bogus", "", nil).Code,
				ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAdminReset(t *testing.T) {
	Convey("Given stored scores", t, func() {
		mux := newTestMux(t)
		So(doJSON(mux, http.MethodPost, "/submissions", testToken,
			nameBody("Lan", "set", 3, 1, 100)).Code, ShouldEqual, http.StatusOK)

		Convey("When reset is called without the shared token", func() {
			rec := doJSON(mux, http.MethodPost, "/admin/reset?scheme=name", "wrong", nil)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When reset is called with the shared token", func() {
			rec := doJSON(mux, http.MethodPost, "/admin/reset?scheme=name", testToken, nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var scores struct {
				Count int `json:"count"`
			}
			rec = doJSON(mux, http.MethodGet, "/scores?scheme=name", "", nil)
			decodeBody(t, rec, &scores)
			So(scores.Count, ShouldEqual, 0)
		})

		Convey("When the scheme is missing", func() {
			So(doJSON(mux, http.MethodPost, "/admin/reset", testToken, nil).Code,
				ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given the API over a fresh service", t, func() {
		mux := newTestMux(t)

		Convey("Then /healthz reports liveness", func() {
			rec := doJSON(mux, http.MethodGet, "/healthz", "", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then /stats reports service state", func() {
			rec := doJSON(mux, http.MethodGet, "/stats", "", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then /metrics serves the Prometheus registry", func() {
			rec := doJSON(mux, http.MethodGet, "/metrics", "", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "scoresync")
		})

		Convey("Then the wrong method falls through to 404", func() {
			So(doJSON(mux, http.MethodGet, "/submissions", "", nil).Code,
				ShouldEqual, http.StatusNotFound)
		})
	})
}
