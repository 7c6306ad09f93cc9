// Command sendscores generates signed submissions and posts them to a
// running scoresync instance, then prints the resulting board. Useful for
// manual and load testing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/signature"
)

const (
	defaultCount   = 100
	defaultWorkers = 4
	defaultTimeout = 10 * time.Second
	runTimeout     = 5 * time.Minute
)

var players = []string{"Trong", "Minh", "Lan", "Mai", "Huy", "Ngoc", "Khoa", "Linh"}

type submissionBody struct {
	Scheme   string `json:"scheme,omitempty"`
	UID      string `json:"uid,omitempty"`
	Player   string `json:"player"`
	Mode     string `json:"mode"`
	Rounds   int64  `json:"rounds"`
	KOs      int64  `json:"kos"`
	Trainers int64  `json:"trainers"`
	Extra    int64  `json:"extra"`
	Marker   int64  `json:"marker"`
	Secret   string `json:"secret,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		token   = flag.String("token", "", "Shared token for name-scheme submissions")
		scheme  = flag.String("scheme", "device", "Identity scheme: device or name")
		count   = flag.Int("count", defaultCount, "Number of submissions to send")
		workers = flag.Int("workers", defaultWorkers, "Number of concurrent senders")
		devices = flag.Int("devices", 8, "Number of distinct devices (device scheme)")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	client := &http.Client{Timeout: *timeout}
	if err := run(ctx, client, *baseURL, *token, *scheme, *count, *workers, *devices); err != nil {
		os.Stderr.WriteString("sendscores failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, client *http.Client, baseURL, token, scheme string, count, workers, devices int) error {
	bodies := generate(scheme, count, devices)

	jobs := make(chan submissionBody)
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for body := range jobs {
				if err := post(ctx, client, baseURL, token, body); err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
			}
		}()
	}

	start := time.Now()
	for _, b := range bodies {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
	}

	fmt.Printf("sent %d submissions in %s\n", count, time.Since(start).Round(time.Millisecond))
	return printBoard(ctx, client, baseURL)
}

// generate builds submissions with monotonically increasing markers so
// every one of them is fresh from the server's point of view.
func generate(scheme string, count, devices int) []submissionBody {
	if devices < 1 {
		devices = 1
	}
	uids := make([]string, devices)
	secrets := make([]string, devices)
	seqs := make([]int64, devices)
	for i := range uids {
		uids[i] = "bench-" + uuid.NewString()
		secrets[i] = uuid.NewString() + uuid.NewString()[:4]
	}

	bodies := make([]submissionBody, count)
	for i := range bodies {
		player := players[rand.Intn(len(players))]
		body := submissionBody{
			Player: player,
			Mode:   string(model.ModeDelta),
			Rounds: 1,
			KOs:    int64(rand.Intn(3)),
		}
		if scheme == string(model.SchemeDevice) {
			d := rand.Intn(devices)
			seqs[d]++
			body.UID = uids[d]
			body.Marker = seqs[d]
			body.Secret = secrets[d]
			body.Tag = signature.Tag(secrets[d], model.Submission{
				Scheme:   model.SchemeDevice,
				UID:      body.UID,
				Player:   body.Player,
				Mode:     model.Mode(body.Mode),
				Counters: model.Counters{Rounds: body.Rounds, KOs: body.KOs},
				Marker:   body.Marker,
			})
		} else {
			body.Scheme = string(model.SchemeName)
			body.Marker = time.Now().UnixMilli() + int64(i)
		}
		bodies[i] = body
	}
	return bodies
}

func post(ctx context.Context, client *http.Client, baseURL, token string, body submissionBody) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/submissions", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Board-Token", token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("submission rejected: %d %s %s", resp.StatusCode, e.Code, e.Message)
	}
	return nil
}

func printBoard(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/board", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var board struct {
		Entries []struct {
			Rank     int    `json:"rank"`
			Player   string `json:"player"`
			Trainers int64  `json:"trainers"`
			KOs      int64  `json:"kos"`
			Rounds   int64  `json:"rounds"`
		} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return err
	}
	for _, e := range board.Entries {
		fmt.Printf("%3d  %-16s trainers=%d kos=%d rounds=%d\n",
			e.Rank, e.Player, e.Trainers, e.KOs, e.Rounds)
	}
	return nil
}
