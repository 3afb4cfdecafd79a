package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newUploadCommand(flags *clientFlags) *cobra.Command {
	var (
		groupID     int64
		threshold   float64
		minDuration int
		single      bool
		force       bool
		wait        bool
	)

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a recording and start detection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := uploadRequest{
				path:    args[0],
				groupID: groupID,
				single:  single,
				force:   force,
			}
			if cmd.Flags().Changed("threshold") {
				req.threshold = &threshold
			}
			if cmd.Flags().Changed("min-duration") {
				req.minDuration = &minDuration
			}
			return runUpload(cmd.OutOrStdout(), flags, req, wait)
		},
	}

	cmd.Flags().Int64Var(&groupID, "group", 1, "Group the session belongs to")
	cmd.Flags().Float64Var(&threshold, "threshold", -30, "Detection threshold in dB")
	cmd.Flags().IntVar(&minDuration, "min-duration", 120, "Minimum take duration in seconds")
	cmd.Flags().BoolVar(&single, "single", false, "Treat the whole recording as one take")
	cmd.Flags().BoolVar(&force, "force", false, "Upload even if the content already exists")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll the job until it finishes")

	return cmd
}

type uploadRequest struct {
	path        string
	groupID     int64
	threshold   *float64
	minDuration *int
	single      bool
	force       bool
}

type uploadResult struct {
	JobID     string `json:"job_id"`
	SessionID int64  `json:"session_id"`
	Status    string `json:"status"`
}

type jobResult struct {
	Status     string `json:"status"`
	TrackCount int    `json:"track_count"`
	Error      string `json:"error"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func runUpload(out io.Writer, flags *clientFlags, req uploadRequest, wait bool) error {
	f, err := os.Open(req.path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Stream the multipart body so large recordings never sit in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadBody(mw, f, req)
		mw.Close()
		pw.CloseWithError(err)
	}()

	httpReq, err := http.NewRequest(http.MethodPost, flags.server+"/api/sessions/upload", pr)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if flags.apiKey != "" {
		httpReq.Header.Set("X-API-Key", flags.apiKey)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return decodeAPIError(resp)
	}

	var result uploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	fmt.Fprintf(out, "session %d created, job %s %s\n", result.SessionID, result.JobID, result.Status)

	if !wait {
		return nil
	}
	return pollJob(out, flags, result.JobID)
}

func writeUploadBody(mw *multipart.Writer, f *os.File, req uploadRequest) error {
	fw, err := mw.CreateFormFile("file", filepath.Base(f.Name()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return err
	}

	fields := map[string]string{
		"group_id": strconv.FormatInt(req.groupID, 10),
		"single":   strconv.FormatBool(req.single),
		"force":    strconv.FormatBool(req.force),
	}
	if req.threshold != nil {
		fields["threshold"] = strconv.FormatFloat(*req.threshold, 'f', -1, 64)
	}
	if req.minDuration != nil {
		fields["min_duration"] = strconv.Itoa(*req.minDuration)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	return nil
}

func pollJob(out io.Writer, flags *clientFlags, jobID string) error {
	for {
		time.Sleep(2 * time.Second)

		httpReq, err := http.NewRequest(http.MethodGet, flags.server+"/api/jobs/"+jobID, nil)
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
		if resp.StatusCode != http.StatusOK {
			err := decodeAPIError(resp)
			resp.Body.Close()
			return err
		}

		var j jobResult
		err = json.NewDecoder(resp.Body).Decode(&j)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode job: %w", err)
		}

		switch j.Status {
		case "completed":
			fmt.Fprintf(out, "done: %d tracks\n", j.TrackCount)
			return nil
		case "failed":
			return fmt.Errorf("detection failed: %s", j.Error)
		default:
			fmt.Fprintf(out, "%s...\n", j.Status)
		}
	}
}

func decodeAPIError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if e.Code == "DUPLICATE" {
		return fmt.Errorf("%s (rerun with --force to upload anyway)", e.Error)
	}
	return fmt.Errorf("%s: %s", resp.Status, e.Error)
}
