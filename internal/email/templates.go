package email

// bodyTemplates holds the liquid sources keyed by <kind>_text and <kind>_html.
// User-supplied values are escaped in every html body.
var bodyTemplates = map[string]string{
	"notification_text": `New contact form submission received:

Name: {{ name }}
Email: {{ email }}
Message: {{ message }}

Timestamp: {{ timestamp }}
`,
	"notification_html": `<h2>New Contact Form Submission</h2>
<p><strong>Name:</strong> {{ name | escape }}</p>
<p><strong>Email:</strong> {{ email | escape }}</p>
<p><strong>Message:</strong> {{ message | escape | nl2br }}</p>
<p><strong>Timestamp:</strong> {{ timestamp }}</p>
`,

	"auto_response_text": `Dear {{ name }},

Thank you for contacting {{ site }}. We have received your message and will get back to you as soon as possible.

Your message:
{{ message }}

Best regards,
{{ site }} Team
`,
	"auto_response_html": `<h2>Thank you for contacting {{ site | escape }}</h2>
<p>Dear {{ name | escape }},</p>
<p>Thank you for contacting {{ site | escape }}. We have received your message and will get back to you as soon as possible.</p>
<p><strong>Your message:</strong><br>{{ message | escape | nl2br }}</p>
<p>Best regards,<br>{{ site | escape }} Team</p>
`,

	"response_text": `Dear {{ name }},

{{ response }}

Best regards,
{{ site }} Team
`,
	"response_html": `<h2>Re: Your message to {{ site | escape }}</h2>
<p>Dear {{ name | escape }},</p>
<p>{{ response | escape | nl2br }}</p>
<p>Best regards,<br>{{ site | escape }} Team</p>
`,

	"test_text": `This is a test email to verify the email configuration.
`,
	"test_html": `<p>This is a test email to verify the email configuration.</p>
`,
}
