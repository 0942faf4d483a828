package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/hrita/customer-portal/pkg/portal"
	"github.com/spf13/cobra"
)

var (
	loginPhone string
	loginCode  string

	logoutAll bool

	targetPhone string
	viewAs      string

	payloadJSON string
	payloadFile string

	leadName  string
	leadPhone string
	leadEmail string
	leadCity  string
	leadNotes string

	pdfOutput string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a one-time code sent to your phone",
	Long: `Request a login code for --phone and exchange it for a session.

Without --code the command sends the SMS and prompts for the code.
In development mode the server returns the code and it is printed.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and delete the session file",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in phone and role",
	RunE:  runWhoami,
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Show the portal dashboard",
	Long: `Show the dashboard the portal renders for the signed-in user.

Admins see the client list and recent activity; with --phone they open
one client's project.`,
	RunE: runData,
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show the stage timeline of a client",
	Long: `Show the resolved stage timeline. Admins may pass --as client to see
the timeline exactly as the client sees it.`,
	RunE: runTimeline,
}

var execCmd = &cobra.Command{
	Use:   "exec <action>",
	Short: "Run a portal action",
	Long: `Run a portal action such as advanceStage, uploadEstimate or reviewDesign.

The payload is a JSON object passed with --payload or read from --payload-file
("-" reads standard input).`,
	Example: `  portalctl exec advanceStage --phone 9876543210 --payload '{"to":"Contacted"}'
  portalctl exec reviewEstimate --payload '{"id":"…","decision":"approved"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var addLeadCmd = &cobra.Command{
	Use:   "add-lead",
	Short: "Add a new client lead (admin)",
	RunE:  runAddLead,
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <estimate-id>",
	Short: "Download an estimate as PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runPDF,
}

func init() {
	loginCmd.Flags().StringVar(&loginPhone, "phone", "", "Registered phone number")
	loginCmd.Flags().StringVar(&loginCode, "code", "", "Login code, if already received")
	_ = loginCmd.MarkFlagRequired("phone")

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Sign out on every device")

	dataCmd.Flags().StringVar(&targetPhone, "phone", "", "Client phone (admins only)")

	timelineCmd.Flags().StringVar(&targetPhone, "phone", "", "Client phone (admins only)")
	timelineCmd.Flags().StringVar(&viewAs, "as", "", "Render for another role: admin, client or architect")

	execCmd.Flags().StringVar(&targetPhone, "phone", "", "Client phone the action applies to")
	execCmd.Flags().StringVar(&payloadJSON, "payload", "", "Action payload as JSON")
	execCmd.Flags().StringVar(&payloadFile, "payload-file", "", "Read the action payload from a file")
	execCmd.MarkFlagsMutuallyExclusive("payload", "payload-file")

	addLeadCmd.Flags().StringVar(&leadName, "name", "", "Client name")
	addLeadCmd.Flags().StringVar(&leadPhone, "phone", "", "Client phone")
	addLeadCmd.Flags().StringVar(&leadEmail, "email", "", "Client email")
	addLeadCmd.Flags().StringVar(&leadCity, "city", "", "Client city")
	addLeadCmd.Flags().StringVar(&leadNotes, "notes", "", "Notes from the first contact")
	_ = addLeadCmd.MarkFlagRequired("name")
	_ = addLeadCmd.MarkFlagRequired("phone")

	pdfCmd.Flags().StringVarP(&pdfOutput, "output", "o", "", "Output file (default estimate-<id>.pdf)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	client := portal.NewClient(serverURL, portal.WithLogger(logger))

	code := strings.TrimSpace(loginCode)
	if code == "" {
		ctx, cancel := commandContext(cmd)
		challenge, err := client.SendOTP(ctx, loginPhone)
		cancel()
		if err != nil {
			return err
		}

		fmt.Fprintln(out, mutedStyle.Render(challenge.Message))
		if challenge.OTP != "" {
			fmt.Fprintf(out, "Development code: %s\n", primaryStyle.Render(challenge.OTP))
		}

		code, err = promptCode(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	session := portal.NewSession(client)
	if err := session.Login(ctx, loginPhone, code); err != nil {
		return err
	}
	if err := session.Save(sessionPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Signed in as %s (%s)\n", successStyle.Render("✓"), session.Phone(), session.Role())
	return nil
}

func promptCode(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter the code: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", errors.New("no code entered")
	}
	return code, nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	session, err := portal.LoadSession(sessionPath, portal.WithLogger(logger))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Not signed in."))
			return nil
		}
		return err
	}

	if err := session.Logout(ctx, logoutAll); err != nil {
		logger.WithError(err).Warn("Server logout failed, removing local session anyway")
	}
	if err := os.Remove(sessionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Signed out\n", successStyle.Render("✓"))
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	session, err := portal.LoadSession(sessionPath, portal.WithLogger(logger))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.New("not signed in")
		}
		return err
	}

	state := successStyle.Render("active")
	if session.Expired() {
		state = mutedStyle.Render("expired, renews on next use")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", session.Phone(), session.Role(), state)
	return nil
}

func runData(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	session, err := openSession(ctx)
	if err != nil {
		return err
	}

	data, err := session.Refresh(ctx, targetPhone)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderDashboard(data))
	return nil
}

func runTimeline(cmd *cobra.Command, args []string) error {
	var role workflow.Role
	if viewAs != "" {
		parsed, err := workflow.ParseRole(viewAs)
		if err != nil {
			return err
		}
		role = parsed
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	session, err := openSession(ctx)
	if err != nil {
		return err
	}

	timeline, err := session.Client().FetchTimeline(ctx, targetPhone, role)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s  %s", timeline.Phone, timeline.Stage)))
	fmt.Fprint(out, renderTimeline(timeline.Timeline))
	if len(timeline.Phases) > 0 {
		fmt.Fprintln(out, headingStyle.Render("Phases"))
		fmt.Fprint(out, renderTimeline(timeline.Phases))
	}
	return nil
}

func readPayload(in io.Reader) (json.RawMessage, error) {
	var raw []byte
	switch {
	case payloadFile == "-":
		b, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		raw = b
	case payloadFile != "":
		b, err := os.ReadFile(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		raw = b
	case payloadJSON != "":
		raw = []byte(payloadJSON)
	default:
		return nil, nil
	}

	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func runExec(cmd *cobra.Command, args []string) error {
	action, err := workflow.ParseAction(args[0])
	if err != nil {
		return err
	}
	if action == workflow.ActionGetData {
		return runData(cmd, nil)
	}

	payload, err := readPayload(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	session, err := openSession(ctx)
	if err != nil {
		return err
	}

	var body interface{}
	if payload != nil {
		body = payload
	}
	result, err := session.Client().SubmitAction(ctx, action, targetPhone, body)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderActionResult(result))
	return nil
}

func runAddLead(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	session, err := openSession(ctx)
	if err != nil {
		return err
	}

	result, err := session.AddLeadOptimistic(ctx, models.AddLeadPayload{
		Name:  leadName,
		Phone: leadPhone,
		Email: leadEmail,
		City:  leadCity,
		Notes: leadNotes,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderActionResult(result))

	data, err := session.Refresh(ctx, "")
	if err != nil {
		logger.WithError(err).Warn("Failed to reload client list")
		data = session.Data()
	}
	if data != nil && len(data.AllClients) > 0 {
		fmt.Fprint(out, renderClients(data.AllClients))
	}
	return nil
}

func runPDF(cmd *cobra.Command, args []string) error {
	id := args[0]
	path := pdfOutput
	if path == "" {
		path = fmt.Sprintf("estimate-%s.pdf", id)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*timeout)
	defer cancel()

	session, err := openSession(ctx)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	start := time.Now()
	if err := session.Client().DownloadEstimate(ctx, id, f); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.WithField("elapsed", time.Since(start).String()).Debug("Estimate downloaded")
	fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s\n", successStyle.Render("✓"), path)
	return nil
}
