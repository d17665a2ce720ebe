// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package testinfra provides shared infrastructure for integration tests.
//
// The container helpers use testcontainers-go to run real backing
// services in Docker, so integration tests exercise actual wire
// protocols instead of mocks. Everything here compiles only under the
// integration build tag.
//
// # NATS Container
//
// NATSContainer runs a real NATS server with JetStream for testing the
// event mirror end to end:
//
//	func TestPublish(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//
//	    ctx := context.Background()
//	    nats, err := testinfra.NewNATSContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, nats.Container)
//
//	    pub, err := events.NewPublisher(config.NATSConfig{URL: nats.URL}, nil)
//	    // ...
//	}
//
// # Webhook Capture
//
// MockWebhookServer records every request a notifier delivers so tests
// can assert on method, headers and body:
//
//	sink := testinfra.NewMockWebhookServer(t)
//	defer sink.Close()
//
//	notifier := notify.NewWebhookNotifier(config.NotifyConfig{WebhookURL: sink.URL()})
//	// ... deliver, then inspect sink.GetCaptures()
//
// # CI Considerations
//
// Container tests require Docker and network access for the first image
// pull. SkipIfNoDocker keeps them green on machines without a daemon;
// the webhook capture server is plain httptest and runs anywhere.
package testinfra
