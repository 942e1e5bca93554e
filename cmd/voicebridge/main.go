// voicebridge: phone-to-AI voice agent backend.
// Bridges Twilio media streams to OpenAI realtime sessions, with document
// search, CRM lead capture and post-call summaries as collaborators.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/starshield/voicebridge/internal/config"
	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/bridge"
	"github.com/starshield/voicebridge/pkg/convlog"
	"github.com/starshield/voicebridge/pkg/crm"
	"github.com/starshield/voicebridge/pkg/realtime"
	"github.com/starshield/voicebridge/pkg/search"
	"github.com/starshield/voicebridge/pkg/summary"
	"github.com/starshield/voicebridge/pkg/twilio"
	"github.com/starshield/voicebridge/pkg/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel, cfg.Env)

	sessions := realtime.NewSessionService(
		cfg.OpenAIAPIKey, cfg.ModelID, cfg.AgentVoice, cfg.PromptID, cfg.PromptVersion)
	cache := realtime.NewSessionCache(sessions.Create)

	var searcher bridge.DocSearcher
	if cfg.SearchEnabled() {
		searcher = search.NewClient(
			cfg.AzureSearchEndpoint, cfg.AzureSearchIndex, cfg.AzureSearchAPIKey, cfg.AzureSearchSemanticConfig)
		log.Info("document search enabled", "index", cfg.AzureSearchIndex)
	}

	var leads crm.LeadCreator
	var notes crm.NoteWriter
	switch {
	case cfg.DynamicsEnabled():
		leads = crm.NewDynamics(
			cfg.DynamicsTenantID, cfg.DynamicsClientID, cfg.DynamicsClientSecret,
			cfg.DynamicsResourceURL, cfg.DynamicsAPIVersion)
		log.Info("CRM backend: dynamics365")
	case cfg.OdooEnabled():
		odoo := crm.NewOdoo(cfg.OdooBaseURL, cfg.OdooAPIKey)
		leads = odoo
		notes = odoo
		log.Info("CRM backend: odoo")
	default:
		leads = crm.Stub{}
		log.Warn("no CRM configured; leads get local ids only")
	}

	var recorder convlog.Recorder
	if cfg.FirestoreEnabled() {
		fs, err := convlog.NewFirestoreRecorder(context.Background(),
			cfg.FirestoreProjectID, cfg.FirestoreCredentialsJSON, cfg.ConversationsCollection)
		if err != nil {
			log.Warn("conversation logging disabled", "error", err)
		} else {
			recorder = fs
			defer fs.Close()
		}
	}

	var calls bridge.CallInitiator
	if cfg.TwilioEnabled() {
		calls = twilio.NewClient(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioNumber,
			cfg.TwilioTwiMLURL, cfg.TwilioStatusCallbackURL)
	}

	summarizer := summary.New(cfg.OpenAIAPIKey, notes, recorder)

	br := bridge.New(bridge.Options{
		Cache:      cache,
		Source:     sessions,
		Voice:      cfg.AgentVoice,
		Searcher:   searcher,
		Leads:      leads,
		Calls:      calls,
		Recorder:   recorder,
		Summarizer: summarizer,
	})

	server := web.NewServer(web.Options{
		Port:             cfg.Port,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		Sessions:         sessions,
		Cache:            cache,
		Bridge:           br,
		Searcher:         searcher,
		Leads:            leads,
		Recorder:         recorder,
		TwilioEnabled:    cfg.TwilioEnabled(),
		StreamURL:        cfg.TwilioStreamURL,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			log.Warn("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
