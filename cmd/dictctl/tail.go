package main

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/muurk/dictserver/internal/device"
	"github.com/muurk/dictserver/internal/status"
	"github.com/muurk/dictserver/internal/version"
)

// streamPath is the server's device stream endpoint.
const streamPath = "/phidgets"

var tailEvery time.Duration

var tailCmd = &cobra.Command{
	Use:   "tail <sn>",
	Short: "Print live device values of a dictionary",
	Long: `Connect to the server's device stream over WebSocket and print every key
of a dictionary, then each value change as it is seen. Stops on Ctrl-C.`,
	Example: `  dictctl tail 7
  dictctl tail 7 --every 500ms`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().DurationVar(&tailEvery, "every", time.Second, "Polling interval")
	rootCmd.AddCommand(tailCmd)
}

// streamURL maps an http(s) base URL onto the ws(s) stream endpoint.
func streamURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + streamPath
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + streamPath
	}
	return "ws://" + base + streamPath
}

// streamClient issues requests on a device stream connection.
type streamClient struct {
	conn   *websocket.Conn
	serial int
}

func (s *streamClient) call(req device.Request) (device.Reply, error) {
	req.Serial = s.serial
	var reply device.Reply
	if err := s.conn.WriteJSON(req); err != nil {
		return reply, fmt.Errorf("failed to send %s: %w", req.Op, err)
	}
	if err := s.conn.ReadJSON(&reply); err != nil {
		return reply, fmt.Errorf("failed to read %s reply: %w", req.Op, err)
	}
	if reply.Result != status.OK {
		return reply, status.New(reply.Result, "%s %s: %s", req.Op, req.Key, reply.Msg)
	}
	return reply, nil
}

// poll reads every key once and returns key->value.
func (s *streamClient) poll() (map[string]string, error) {
	reply, err := s.call(device.Request{Op: "keys"})
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(reply.Keys))
	for _, k := range reply.Keys {
		r, err := s.call(device.Request{Op: "get", Key: k})
		if status.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		values[k] = r.Value
	}
	return values, nil
}

// diff writes the changes between prev and cur to w in key order.
func diff(w io.Writer, prev, cur map[string]string, at time.Time) {
	stamp := at.Format("15:04:05")
	keys := make([]string, 0, len(cur)+len(prev))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		v, ok := cur[k]
		old, had := prev[k]
		switch {
		case !ok:
			fmt.Fprintf(w, "%s  - %s\n", stamp, k)
		case !had:
			fmt.Fprintf(w, "%s  + %s = %s\n", stamp, k, v)
		case v != old:
			fmt.Fprintf(w, "%s  ~ %s = %s\n", stamp, k, v)
		}
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	sn, err := parseSerial(args[0])
	if err != nil {
		return err
	}
	_, server, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	p := printer(cmd)
	target := streamURL(server)
	p.Header("tail", fmt.Sprintf("dictctl tail %d", sn), map[string]string{"Stream": target})

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	hdr := http.Header{"User-Agent": {version.UserAgent("dictctl")}}
	conn, _, err := dialer.DialContext(cmd.Context(), target, hdr)
	if err != nil {
		return report(p, "Failed to open device stream", err)
	}
	defer conn.Close()

	sc := &streamClient{conn: conn, serial: sn}
	ticker := time.NewTicker(tailEvery)
	defer ticker.Stop()

	var prev map[string]string
	for {
		cur, err := sc.poll()
		if err != nil {
			return report(p, "Device stream failed", err)
		}
		diff(cmd.OutOrStdout(), prev, cur, time.Now())
		prev = cur

		select {
		case <-cmd.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case <-ticker.C:
		}
	}
}
