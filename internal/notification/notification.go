/*
Copyright 2024 Tupa Sync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/internal/request"
)

// Severity classifies an alert. Individual integration errors notify at
// SeverityError; a circuit opening for a client notifies at SeverityCritical.
type Severity string

const (
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func severityHeader(severity Severity) string {
	if severity == SeverityCritical {
		return "Circuit Open: Tupa Sync 🚨"
	}
	return "Error From Tupa Sync 🐞"
}

// SlackNotification sends an alert to the configured Slack webhook. The
// payload carries the severity, the client involved and the error message.
func SlackNotification(clientID string, severity Severity, err error) {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "%s",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Client:*\n%s"
					},
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%v"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, severityHeader(severity), clientID, err.Error(), time.Now().Format(time.RFC822)))

	conf, err2 := config.Fetch()
	if err2 != nil {
		log.Println(err2)
		return
	}

	payload, err2 := request.ToJsonReq(&data)
	if err2 != nil {
		log.Println(err2)
		return
	}

	req, err2 := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err2 != nil {
		log.Println(err2)
		return
	}

	var response map[string]interface{}
	if _, err2 = request.Call(req, &response); err2 != nil {
		log.Println(err2)
	}
}

// NotifyError reports an individual integration error. It logs locally and,
// when Slack is configured, dispatches the alert asynchronously so callers
// never block on the side channel.
func NotifyError(clientID string, systemError error) {
	notify(clientID, SeverityError, systemError)
}

// NotifyCircuitOpen reports that a client's circuit breaker opened. This is
// the only alert emitted at critical severity.
func NotifyCircuitOpen(clientID string, reason error) {
	notify(clientID, SeverityCritical, reason)
}

func notify(clientID string, severity Severity, systemError error) {
	go func() {
		entry := logrus.WithFields(logrus.Fields{"client_id": clientID, "severity": severity})
		if severity == SeverityCritical {
			entry.Error(systemError)
		} else {
			entry.Warn(systemError)
		}

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(clientID, severity, systemError)
		}
	}()
}
