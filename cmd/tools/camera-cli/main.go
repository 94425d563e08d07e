package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/annel0/camera-rig/internal/api"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	defaultServerAddr = "http://localhost:8089"
	timeFormat        = "15:04:05.000"
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "Debug API address")
		command    = flag.String("cmd", "list", "Command: list, get, tail, replay, stats")
		character  = flag.String("id", "", "Character ID (get, tail, replay)")
		from       = flag.Uint64("from", 0, "First sequence number (replay)")
		to         = flag.Uint64("to", 0, "Last sequence number, 0 = until the end (replay)")
		interval   = flag.Duration("interval", 200*time.Millisecond, "Polling interval (tail)")
		limit      = flag.Int("limit", 0, "Stop after N frames, 0 = until interrupted (tail)")
		timeout    = flag.Duration("timeout", 5*time.Second, "HTTP timeout")
	)
	flag.Parse()

	client := &apiClient{
		base: strings.TrimRight(*serverAddr, "/"),
		http: &http.Client{Timeout: *timeout},
	}
	ctx := context.Background()

	// Выполняем команду
	switch *command {
	case "list":
		if err := listCameras(ctx, client); err != nil {
			log.Fatalf("❌ List failed: %v", err)
		}

	case "get":
		if err := getCamera(ctx, client, requireID(*character)); err != nil {
			log.Fatalf("❌ Get failed: %v", err)
		}

	case "tail":
		if err := tailCamera(ctx, client, requireID(*character), *interval, *limit); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "replay":
		if err := replayCamera(ctx, client, requireID(*character), *from, *to); err != nil {
			log.Fatalf("❌ Replay failed: %v", err)
		}

	case "stats":
		if err := showStats(ctx, client); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: list, get, tail, replay, stats")
		os.Exit(1)
	}
}

func requireID(id string) string {
	if id == "" {
		fmt.Println("❌ -id is required for this command")
		os.Exit(1)
	}
	return id
}

// apiClient — тонкий клиент отладочного API
type apiClient struct {
	base string
	http *http.Client
}

// get выполняет GET и возвращает тело ответа и заголовки
func (c *apiClient) get(ctx context.Context, path string, query url.Values) ([]byte, http.Header, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var generic api.GenericResponse
		if json.Unmarshal(body, &generic) == nil && generic.Message != "" {
			return nil, nil, fmt.Errorf("%s: %s", resp.Status, generic.Message)
		}
		return nil, nil, fmt.Errorf("%s", resp.Status)
	}
	return body, resp.Header, nil
}

// getJSON разбирает GenericResponse с полезной нагрузкой data
func (c *apiClient) getJSON(ctx context.Context, path string, data interface{}) error {
	body, _, err := c.get(ctx, path, nil)
	if err != nil {
		return err
	}
	resp := api.GenericResponse{Data: data}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("invalid response: %v", err)
	}
	return nil
}

// listCameras выводит последние кадры всех камер
func listCameras(ctx context.Context, c *apiClient) error {
	var views []api.CameraView
	if err := c.getJSON(ctx, "/api/cameras", &views); err != nil {
		return err
	}
	fmt.Printf("🎥 Cameras: %d\n", len(views))
	for _, v := range views {
		printView(v)
	}
	return nil
}

// getCamera выводит последний кадр одной камеры
func getCamera(ctx context.Context, c *apiClient, id string) error {
	var view api.CameraView
	if err := c.getJSON(ctx, "/api/cameras/"+url.PathEscape(id), &view); err != nil {
		return err
	}
	printView(view)
	return nil
}

// tailCamera опрашивает камеру и печатает новые кадры (как tail -f)
func tailCamera(ctx context.Context, c *apiClient, id string, interval time.Duration, limit int) error {
	fmt.Printf("🎬 Tailing camera %s every %s\n", id, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	printed := 0
	for range ticker.C {
		var view api.CameraView
		if err := c.getJSON(ctx, "/api/cameras/"+url.PathEscape(id), &view); err != nil {
			return err
		}
		if !view.At.After(last) {
			continue
		}
		last = view.At
		printView(view)

		printed++
		if limit > 0 && printed >= limit {
			break
		}
	}
	return nil
}

// replayCamera скачивает сжатую пачку кадров журнала и печатает их
func replayCamera(ctx context.Context, c *apiClient, id string, from, to uint64) error {
	query := url.Values{"format": {"zstd"}}
	if from > 0 {
		query.Set("from", fmt.Sprint(from))
	}
	if to > 0 {
		query.Set("to", fmt.Sprint(to))
	}

	body, header, err := c.get(ctx, "/api/cameras/"+url.PathEscape(id)+"/replay", query)
	if err != nil {
		return err
	}

	codec, err := replication.NewFrameCodec()
	if err != nil {
		return err
	}
	defer codec.Close()

	states, err := codec.Unpack(body)
	if err != nil {
		return fmt.Errorf("decode frames: %v", err)
	}

	fmt.Printf("📼 Replay %s: %d frames (server reported %s, %d bytes compressed)\n",
		id, len(states), header.Get("X-Frame-Count"), len(body))
	for _, s := range states {
		camPos := vec.Spherical{Yaw: s.Yaw, Pitch: s.Pitch, Distance: s.Distance}.Point(s.Pivot)
		fmt.Printf("[%s] #%d %-12s pivot=%s camera=%s\n",
			s.Timestamp().Format(timeFormat), s.Sequence, s.ModeID, fmtVec(s.Pivot), fmtVec(camPos))
	}
	return nil
}

// showStats выводит статистику процесса
func showStats(ctx context.Context, c *apiClient) error {
	stats := map[string]interface{}{}
	if err := c.getJSON(ctx, "/api/stats", &stats); err != nil {
		return err
	}
	fmt.Println("📊 Server statistics")
	for _, key := range []string{"uptime", "cameras", "degraded_cameras", "goroutines", "heap_alloc_mb", "rss_mb", "cpu_percent", "num_gc"} {
		if v, ok := stats[key]; ok {
			fmt.Printf("  %s: %v\n", key, v)
		}
	}
	return nil
}

// printView выводит кадр камеры в читаемом формате
func printView(v api.CameraView) {
	fmt.Printf("[%s] %s [%s/%s] #%d pos=%s fov=%.1f dist=%.2f",
		v.At.Format(timeFormat), v.CharacterID, v.Mode, v.Style, v.Sequence,
		fmtVec(mgl64.Vec3(v.Position)), v.FOV, v.Distance)
	if v.Collapsed {
		fmt.Print(" collapsed")
	}
	if v.Transitioned {
		fmt.Print(" transition")
	}
	if len(v.Degraded) > 0 {
		fmt.Printf(" degraded=%s", strings.Join(v.Degraded, ","))
	}
	fmt.Println()
}

func fmtVec(v mgl64.Vec3) string {
	return fmt.Sprintf("(%.2f,%.2f,%.2f)", v[0], v[1], v[2])
}
