package web

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hourwatch/hourwatch/internal/config"
	"github.com/hourwatch/hourwatch/internal/email"
)

// Setup wizard handlers. Wizard state lives in a server-side session;
// nothing is written to the config file until the final step.

func (s *Server) handleSetupWelcome(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title": "Setup",
		"Step":  "welcome",
	}
	s.renderWithCSRF(w, r, "setup/welcome.html", data)
}

func (s *Server) handleSetupEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method == "POST" {
		emailCfg := config.EmailConfig{
			Provider: strings.TrimSpace(r.FormValue("provider")),
			From:     strings.TrimSpace(r.FormValue("from")),
		}

		errors := make(map[string]string)

		if emailCfg.From == "" {
			errors["from"] = "Sender address is required"
		} else if err := email.ValidateEmail(emailCfg.From); err != nil {
			errors["from"] = "Please enter a valid email address"
		}

		switch emailCfg.Provider {
		case "smtp":
			emailCfg.SMTP.Host = strings.TrimSpace(r.FormValue("smtp_host"))
			emailCfg.SMTP.Port, _ = strconv.Atoi(r.FormValue("smtp_port"))
			emailCfg.SMTP.Username = strings.TrimSpace(r.FormValue("smtp_username"))
			emailCfg.SMTP.Password = r.FormValue("smtp_password")
			emailCfg.SMTP.UseTLS = r.FormValue("smtp_tls") == "on"
			emailCfg.SMTP.StartTLS = r.FormValue("smtp_starttls") == "on"

			if emailCfg.SMTP.Host == "" {
				errors["smtp_host"] = "SMTP host is required"
			}
			if emailCfg.SMTP.Port == 0 {
				errors["smtp_port"] = "SMTP port is required"
			}
			if emailCfg.SMTP.Username == "" {
				errors["smtp_username"] = "Username is required"
			}
			if emailCfg.SMTP.Password == "" {
				errors["smtp_password"] = "App password is required"
			}
			if emailCfg.SMTP.Username != "" && !emailCfg.SMTP.UseTLS && !emailCfg.SMTP.StartTLS {
				errors["smtp_tls"] = "TLS is required when authenticating"
			}
		case "sendgrid":
			emailCfg.SendGridAPIKey = strings.TrimSpace(r.FormValue("sendgrid_api_key"))
			if emailCfg.SendGridAPIKey == "" {
				errors["sendgrid_api_key"] = "SendGrid API key is required"
			}
		case "resend":
			emailCfg.ResendAPIKey = strings.TrimSpace(r.FormValue("resend_api_key"))
			if emailCfg.ResendAPIKey == "" {
				errors["resend_api_key"] = "Resend API key is required"
			}
		default:
			errors["provider"] = "Choose an email provider"
		}

		if len(errors) > 0 {
			data := map[string]interface{}{
				"Title":  "Setup - Email",
				"Step":   "email",
				"Email":  emailCfg,
				"Errors": errors,
			}
			s.renderWithCSRF(w, r, "setup/email.html", data)
			return
		}

		// Store credentials in the secure server-side session
		session := s.getOrCreateSession(w, r)
		if session == nil {
			http.Error(w, "Session error", http.StatusInternalServerError)
			return
		}
		s.updateSession(r, func(sess *Session) {
			sess.Step = "classifier"
			sess.Email = emailCfg
		})
		http.Redirect(w, r, "/setup/classifier", http.StatusFound)
		return
	}

	session := s.getSession(r)
	var emailCfg config.EmailConfig
	if session != nil && session.Email.Provider != "" {
		emailCfg = session.Email
	} else if s.config != nil {
		// Reconfiguring: prefill from the saved config
		emailCfg = s.config.Email
	}
	if emailCfg.SMTP.Host == "" {
		emailCfg.SMTP.Host = "smtp.gmail.com"
		emailCfg.SMTP.Port = 465
		emailCfg.SMTP.UseTLS = true
	}

	data := map[string]interface{}{
		"Title": "Setup - Email",
		"Step":  "email",
		"Email": emailCfg,
	}
	s.renderWithCSRF(w, r, "setup/email.html", data)
}

func (s *Server) handleSetupClassifier(w http.ResponseWriter, r *http.Request) {
	session := s.getSession(r)
	if session == nil || session.Email.Provider == "" {
		http.Redirect(w, r, "/setup/email", http.StatusFound)
		return
	}

	if r.Method == "POST" {
		tracker := config.TrackerConfig{
			ClassifierMode: r.FormValue("classifier_mode"),
			SendPolicy:     config.PolicyFlaggedOnly,
		}
		tracker.Threshold, _ = strconv.ParseFloat(r.FormValue("threshold"), 64)
		if tracker.Threshold <= 0 {
			tracker.Threshold = config.DefaultThreshold
		}

		llmCfg := config.LLMConfig{
			Provider: r.FormValue("llm_provider"),
			Model:    strings.TrimSpace(r.FormValue("llm_model")),
			APIKey:   strings.TrimSpace(r.FormValue("llm_api_key")),
		}

		errors := make(map[string]string)
		switch tracker.ClassifierMode {
		case config.ModeKeyword:
			// No LLM needed
		case config.ModeGenerative:
			if llmCfg.Provider != "anthropic" && llmCfg.Provider != "openai" {
				errors["llm_provider"] = "Choose a provider"
			}
			if llmCfg.ResolveAPIKey() == "" {
				errors["llm_api_key"] = "API key is required (or set it in the environment)"
			}
		default:
			errors["classifier_mode"] = "Choose a classifier mode"
		}

		if len(errors) > 0 {
			data := map[string]interface{}{
				"Title":   "Setup - Classifier",
				"Step":    "classifier",
				"Tracker": tracker,
				"LLM":     llmCfg,
				"Errors":  errors,
			}
			s.renderWithCSRF(w, r, "setup/classifier.html", data)
			return
		}

		s.updateSession(r, func(sess *Session) {
			sess.Step = "test"
			sess.Tracker = tracker
			sess.LLM = llmCfg
		})
		http.Redirect(w, r, "/setup/test", http.StatusFound)
		return
	}

	tracker := session.Tracker
	llmCfg := session.LLM
	if tracker.ClassifierMode == "" && s.config != nil {
		tracker = s.config.Tracker
		llmCfg = s.config.LLM
	}
	if tracker.Threshold == 0 {
		tracker.Threshold = config.DefaultThreshold
	}
	if tracker.ClassifierMode == "" {
		tracker.ClassifierMode = config.ModeKeyword
	}

	data := map[string]interface{}{
		"Title":   "Setup - Classifier",
		"Step":    "classifier",
		"Tracker": tracker,
		"LLM":     llmCfg,
	}
	s.renderWithCSRF(w, r, "setup/classifier.html", data)
}

func (s *Server) handleSetupTest(w http.ResponseWriter, r *http.Request) {
	session := s.getSession(r)
	if session == nil || session.Email.Provider == "" {
		http.Redirect(w, r, "/setup/email", http.StatusFound)
		return
	}

	data := map[string]interface{}{
		"Title": "Setup - Test",
		"Step":  "test",
		"Email": session.Email,
	}
	s.renderWithCSRF(w, r, "setup/test.html", data)
}

func (s *Server) handleSetupTestSend(w http.ResponseWriter, r *http.Request) {
	session := s.getSession(r)
	if session == nil || session.Email.Provider == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`<div class="text-red-600">Email not configured. Please go back to the email step.</div>`))
		return
	}

	sender, err := email.NewSender(session.Email)
	if err != nil {
		w.Write([]byte(fmt.Sprintf(`
			<div class="bg-red-100 border border-red-400 text-red-700 px-4 py-3 rounded">
				<strong>Configuration error:</strong> %s
				<p class="mt-2 text-sm">Please check your email settings and try again.</p>
			</div>
		`, template.HTMLEscapeString(err.Error()))))
		return
	}

	testMsg := email.Message{
		To:      session.Email.From,
		From:    session.Email.From,
		Subject: "Hourwatch Test Email",
		Body: `Hello,

This is a test email from Hourwatch to verify your email configuration is working correctly.

If you received this email, your setup is complete and attendance notifications can go out.

Best,
HR Team`,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result := sender.Send(ctx, testMsg)
	if !result.Success {
		errMsg := "Unknown error"
		if result.Error != nil {
			errMsg = result.Error.Error()
		}
		w.Write([]byte(fmt.Sprintf(`
			<div class="bg-red-100 border border-red-400 text-red-700 px-4 py-3 rounded">
				<strong>Test failed:</strong> %s
				<p class="mt-2 text-sm">Please check your email configuration and try again.</p>
			</div>
			<div class="mt-4">
				<a href="/setup/email" class="text-indigo-600 hover:text-indigo-800 font-medium">
					Back to Email Settings
				</a>
			</div>
		`, template.HTMLEscapeString(errMsg))))
		return
	}

	w.Write([]byte(`
		<div class="bg-green-100 border border-green-400 text-green-700 px-4 py-3 rounded">
			<strong>Success!</strong> Test email sent to your address.
			<p class="mt-2 text-sm">Check your inbox (and spam folder) for the test message.</p>
		</div>
		<div class="mt-4">
			<a href="/setup/complete" class="inline-flex items-center px-6 py-3 bg-indigo-600 text-white font-medium rounded-md hover:bg-indigo-700">
				Complete Setup
			</a>
		</div>
	`))
}

func (s *Server) handleSetupComplete(w http.ResponseWriter, r *http.Request) {
	session := s.getSession(r)
	if session == nil || session.Email.Provider == "" {
		http.Redirect(w, r, "/setup", http.StatusFound)
		return
	}

	cfg := &config.Config{
		Email:   session.Email,
		LLM:     session.LLM,
		Tracker: session.Tracker,
	}
	if s.config != nil {
		// Bounce scanning is configured on the settings page, not here
		cfg.Inbox = s.config.Inbox
	}
	cfg.ApplyDefaults()

	if err := config.Save(s.configPath, cfg); err != nil {
		data := map[string]interface{}{
			"Title": "Setup - Error",
			"Error": err.Error(),
		}
		s.renderWithCSRF(w, r, "setup/complete.html", data)
		return
	}

	s.config = cfg

	// Credentials are now in the config file; drop the session copy
	s.clearSession(w, r)

	data := map[string]interface{}{
		"Title": "Setup Complete",
		"Step":  "complete",
	}
	s.renderWithCSRF(w, r, "setup/complete.html", data)
}

// Secure session helpers - credentials stored server-side only
// Cookie contains only an opaque session ID, never credentials

const sessionCookie = "hourwatch_session"

func (s *Server) getOrCreateSession(w http.ResponseWriter, r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil && cookie.Value != "" {
		if session := s.sessions.Get(cookie.Value); session != nil {
			return session
		}
	}

	sessionID, err := s.sessions.Create()
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   1800, // 30 minutes
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		// Secure flag omitted for localhost HTTP
	})

	return s.sessions.Get(sessionID)
}

func (s *Server) getSession(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return s.sessions.Get(cookie.Value)
}

func (s *Server) updateSession(r *http.Request, updateFn func(*Session)) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	return s.sessions.Update(cookie.Value, updateFn)
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil && cookie.Value != "" {
		s.sessions.Delete(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
