package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
	logsvc "github.com/trezcool/campus/services/logger"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	logger := logsvc.NewTestLogger()
	core.ParseEmailTemplates(conf, logger)
	svc := NewConsoleServiceMock(conf, logger)

	svc.SendMessages(
		&core.EmailMessage{
			To:      []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
			Subject: "plain",
			BodyStr: "hello",
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{
			To:           []mail.Address{{Address: "owner@example.com"}},
			Subject:      "New submission",
			TemplateName: "submission_received",
			TemplateData: map[string]interface{}{
				"AssignmentID":     "a1",
				"AssignmentTitle":  "Essay",
				"StudentName":      "Grace",
				"SubmissionNumber": 2,
				"IsLate":           true,
				"FileName":         "essay.pdf",
			},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "Grace")
	assert.Contains(t, sent[1].TextContent, "Essay")
	assert.Contains(t, sent[1].HTMLContent, "essay.pdf")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	svc := consoleService{from: mail.Address{Name: "Campus", Address: "noreply@localhost"}, subjPrefix: "[Campus] "}
	body, err := svc.format(core.EmailMessage{
		To:          []mail.Address{{Address: "a@example.com"}, {Address: "b@example.com"}},
		Subject:     "Hi",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Campus] Hi")
	assert.Contains(t, body, "To: <a@example.com>, <b@example.com>")
	assert.Contains(t, body, "text/html")
}
