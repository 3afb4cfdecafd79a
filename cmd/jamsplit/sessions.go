package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func newSessionsCommand(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd.OutOrStdout(), flags)
		},
	}
}

type sessionRow struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Date        *string `json:"date"`
	TrackCount  int     `json:"track_count"`
	TaggedCount int     `json:"tagged_count"`
	SongNames   string  `json:"song_names"`
}

func runSessions(out io.Writer, flags *clientFlags) error {
	httpReq, err := http.NewRequest(http.MethodGet, flags.server+"/api/sessions", nil)
	if err != nil {
		return err
	}
	if flags.apiKey != "" {
		httpReq.Header.Set("X-API-Key", flags.apiKey)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var sessions []sessionRow
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return fmt.Errorf("decode sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}

	rows := make([][]string, len(sessions))
	for i, s := range sessions {
		date := ""
		if s.Date != nil {
			date = *s.Date
		}
		rows[i] = []string{
			strconv.FormatInt(s.ID, 10),
			date,
			s.Name,
			strconv.Itoa(s.TrackCount),
			fmt.Sprintf("%d/%d", s.TaggedCount, s.TrackCount),
			s.SongNames,
		}
	}

	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Date", "Name", "Tracks", "Tagged", "Songs"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}
