package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/config"
	"github.com/hourwatch/hourwatch/internal/email"
	"github.com/hourwatch/hourwatch/internal/inbox"
	"github.com/hourwatch/hourwatch/internal/llm"
	"github.com/hourwatch/hourwatch/internal/notify"
	"github.com/hourwatch/hourwatch/internal/pipeline"
	"github.com/hourwatch/hourwatch/internal/report"
	"github.com/hourwatch/hourwatch/internal/roster"
	"github.com/hourwatch/hourwatch/internal/web"
)

var cfgFile string

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hourwatch",
		Short: "Hourwatch - Weekly work-hour tracking and attendance alerts",
		Long: `Hourwatch reads a weekly hours spreadsheet, flags employees who fell
short of the threshold, classifies the reasons they gave, and sends
each flagged employee an attendance notification email.

Results can be reviewed in a local web UI or exported back to a
spreadsheet.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hourwatch/config.yaml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(scanBouncesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long:  "Create a new configuration file with your email and tracking settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runCmd() *cobra.Command {
	var out string
	var sendAll bool

	cmd := &cobra.Command{
		Use:   "run <spreadsheet.xlsx>",
		Short: "Process a weekly hours spreadsheet",
		Long: `Read the given spreadsheet, flag employees under the weekly hours
threshold, classify their reasons, send notification emails, and
export the results spreadsheet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(args[0], out, sendAll)
		},
	}

	cmd.Flags().StringVar(&out, "out", report.ExportFileName, "Path for the results spreadsheet")
	cmd.Flags().BoolVar(&sendAll, "send-all", false, "Also email employees whose reason was approved")

	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web interface",
		Long: `Start a local web server providing a browser-based interface for
Hourwatch.

From the dashboard you can upload spreadsheets, watch runs progress,
review the three outcome buckets, and download the results.

The server runs locally on your machine - spreadsheets and results
never leave it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")

	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <reason>",
		Short: "Classify a single reason with the keyword rules",
		Long:  "Run one reason text through the keyword classifier and print the category. Useful for checking how a reason will be judged before a run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := classify.Classify(args[0])
			fmt.Printf("%s\n", category)
			return nil
		},
	}
}

func scanBouncesCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "scan-bounces",
		Short: "Scan the inbox for bounced notifications",
		Long: `Connect to your email inbox via IMAP and look for delivery failure
messages, so you can spot employees whose notification never arrived.

Requires inbox configuration in config.yaml with IMAP settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanBounces(days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to look back")

	return cmd
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("⏱️  Hourwatch Configuration Setup")
	fmt.Println("=================================")
	fmt.Println()

	cfg := &config.Config{}

	fmt.Println("📧 Email Settings (notifications are sent from this account)")
	fmt.Println()

	cfg.Email.Provider = "smtp"
	cfg.Email.From = prompt(reader, "From address: ")

	fmt.Println()
	fmt.Println("Gmail SMTP Configuration:")
	fmt.Println("  (See https://support.google.com/accounts/answer/185833 for app password setup)")
	fmt.Println()
	cfg.Email.SMTP.Host = "smtp.gmail.com"
	cfg.Email.SMTP.Port = 465
	cfg.Email.SMTP.UseTLS = true
	cfg.Email.SMTP.Username = prompt(reader, "  Gmail address: ")
	cfg.Email.SMTP.Password = prompt(reader, "  App password (16-character code): ")

	fmt.Println()
	fmt.Println("⚙️  Tracking")
	fmt.Println()

	thresholdStr := prompt(reader, fmt.Sprintf("Weekly hours threshold [%d]: ", config.DefaultThreshold))
	cfg.Tracker.Threshold, _ = strconv.ParseFloat(thresholdStr, 64)

	modeChoice := prompt(reader, "Classifier mode (keyword/generative) [keyword]: ")
	if modeChoice == config.ModeGenerative {
		cfg.Tracker.ClassifierMode = config.ModeGenerative
		cfg.LLM.Provider = prompt(reader, "  LLM provider (anthropic/openai) [openai]: ")
		cfg.LLM.Model = prompt(reader, "  Model (blank for the provider default): ")
		cfg.LLM.APIKey = prompt(reader, "  API key (blank to use the environment variable): ")
	}

	cfg.ApplyDefaults()

	configPath := resolveConfigPath()
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("✅ Configuration saved to: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit the config file if needed")
	fmt.Println("  2. Run 'hourwatch run hours.xlsx' to process this week's sheet")
	fmt.Println("  3. Or run 'hourwatch serve' for the web interface")

	return nil
}

func runProcess(path, out string, sendAll bool) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	records, err := roster.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No records found in the spreadsheet.")
		return nil
	}

	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return fmt.Errorf("failed to initialize email sender: %w", err)
	}

	var composer notify.Composer
	if cfg.Tracker.ClassifierMode == config.ModeGenerative {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		composer = notify.NewGenerativeComposer(client)
	} else {
		composer, err = notify.NewTemplateComposer(cfg.Tracker.Threshold)
		if err != nil {
			return fmt.Errorf("failed to initialize templates: %w", err)
		}
	}

	p := &pipeline.Pipeline{
		Composer:  composer,
		Sender:    sender,
		From:      cfg.Email.From,
		Threshold: cfg.Tracker.Threshold,
		SendAll:   sendAll || cfg.Tracker.SendPolicy == config.PolicyAll,
		OnProgress: func(done, total int) {
			fmt.Printf("\r[%d/%d] records processed", done, total)
		},
	}

	fmt.Printf("📤 Processing %d records (threshold %g hours)...\n", len(records), cfg.Tracker.Threshold)

	summary := p.Run(context.Background(), records)
	fmt.Println()
	fmt.Println()

	printSummary(summary)

	// Results survive an export failure; the run itself is done.
	if err := report.WriteFile(out, summary); err != nil {
		fmt.Printf("⚠️  Failed to write results spreadsheet: %v\n", err)
		return nil
	}
	fmt.Printf("💾 Results written to %s\n", out)

	return nil
}

func printSummary(summary *pipeline.Summary) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("📊 Approved: %d, Not Genuine: %d, Shady: %d, Skipped: %d\n",
		len(summary.Approved), len(summary.NotGenuine), len(summary.Shady), summary.Skipped)

	printBucket := func(title string, outcomes []pipeline.Outcome) {
		if len(outcomes) == 0 {
			return
		}
		fmt.Println()
		fmt.Println(title)
		for _, o := range outcomes {
			status := ""
			if o.Sent {
				status = " ✅ notified"
			} else if o.SendErr != "" {
				status = " ❌ " + o.SendErr
			}
			fmt.Printf("  %s <%s> — %s%s\n", o.Record.EmployeeName, o.Record.Email, o.Record.Reason, status)
		}
	}

	printBucket("✔️  Approved reasons:", summary.Approved)
	printBucket("✖️  Not genuine reasons:", summary.NotGenuine)
	printBucket("⚠️  Shady reasons:", summary.Shady)

	if len(summary.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Warnings:")
		for _, warning := range summary.Warnings {
			fmt.Printf("  ⚠️  %s\n", warning)
		}
	}
}

func runServe(port int) error {
	configPath := resolveConfigPath()
	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			fmt.Printf("⚠️  Config exists but failed to load: %v\n", err)
			fmt.Println("The setup wizard will help you reconfigure.")
			cfg = nil
		}
	}
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}

	server, err := web.NewServer(port, cfg, configPath)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	return server.Start()
}

func runScanBounces(days int) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateInbox(); err != nil {
		fmt.Println("📧 Bounce scanning is not configured.")
		fmt.Println()
		fmt.Println("To enable it, add the following to your config.yaml:")
		fmt.Println()
		fmt.Println("inbox:")
		fmt.Println("  enabled: true")
		fmt.Println("  server: imap.gmail.com")
		fmt.Println("  port: 993")
		fmt.Println("  email: your-email@gmail.com")
		fmt.Println("  password: your-app-password  # Use an App Password, not your main password")
		return err
	}

	monitor := inbox.NewMonitor(cfg.Inbox)
	if err := monitor.Connect(); err != nil {
		return fmt.Errorf("failed to connect to inbox: %w", err)
	}
	defer monitor.Disconnect()

	fmt.Printf("📬 Scanning inbox for bounced notifications (last %d days)...\n", days)
	fmt.Println()

	bounces, err := monitor.ScanBounces(days)
	if err != nil {
		return fmt.Errorf("failed to scan inbox: %w", err)
	}

	if len(bounces) == 0 {
		fmt.Println("No bounced notifications found.")
		return nil
	}

	fmt.Printf("Found %d bounce(s):\n", len(bounces))
	for _, b := range bounces {
		recipient := b.Recipient
		if recipient == "" {
			recipient = "(could not determine recipient)"
		}
		fmt.Printf("  ❌ %s — %s (%s)\n", recipient, b.Subject, b.ReceivedAt.Format("Jan 2"))
	}
	fmt.Println()
	fmt.Println("These employees likely never received their notification;")
	fmt.Println("check their addresses in the source spreadsheet.")

	return nil
}

func prompt(reader *bufio.Reader, message string) string {
	fmt.Print(message)
	input, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(input)
}
