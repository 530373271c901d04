package render

const welcomeHTML = `<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(135deg, #0d6efd, #0056b3); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="margin: 0; font-size: 28px;">📰 Welcome to {{.SiteName}}!</h1>
    <p style="margin: 10px 0 0 0; font-size: 16px;">Your trusted source for breaking news</p>
  </div>
  <div style="background: #f8f9fa; padding: 30px; border-radius: 0 0 10px 10px;">
    <h2 style="color: #333; margin-top: 0;">Thank you for subscribing!</h2>
    <p style="color: #666; line-height: 1.6;">We're excited to have you join our community of informed readers. You'll receive:</p>
    <ul style="color: #666; line-height: 1.8;">
      <li>📰 Daily news digest with the most important stories</li>
      <li>⚡ Breaking news alerts for urgent updates</li>
      <li>📊 Weekly news roundup and analysis</li>
      <li>🎯 Personalized content based on your interests</li>
    </ul>
    <div style="background: white; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #0d6efd;">
      <h3 style="color: #0d6efd; margin-top: 0;">What's Next?</h3>
      <p style="color: #666; margin-bottom: 0;">Keep an eye on your inbox for our latest news updates. We promise to deliver only high-quality, relevant content that keeps you informed about what matters most.</p>
    </div>
    <p style="color: #666; font-size: 14px; margin-top: 30px;">Best regards,<br><strong>The {{.SiteName}} Team</strong></p>
    <hr style="border: none; border-top: 1px solid #dee2e6; margin: 20px 0;">
    <p style="color: #999; font-size: 12px; text-align: center;">If you didn't subscribe to this newsletter, you can safely ignore this email.</p>
  </div>
</body>
</html>
`

const digestHTML = `<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f8f9fa;">
  <div style="background: linear-gradient(135deg, #0d6efd, #0056b3); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="margin: 0; font-size: 28px;">📰 {{.SiteName}}</h1>
    <p style="margin: 10px 0 0 0; font-size: 16px;">Daily News Digest - {{.Date}}</p>
  </div>
  <div style="background: white; padding: 30px; border-radius: 0 0 10px 10px;">
    <h2 style="color: #333; margin-top: 0; border-bottom: 2px solid #0d6efd; padding-bottom: 10px;">Today's Top Stories</h2>
{{range .Articles}}
    <div style="margin-bottom: 30px; padding-bottom: 20px; border-bottom: 1px solid #dee2e6;">
{{- if .IsBreaking}}
      <div style="background: #dc3545; color: white; padding: 5px 10px; border-radius: 15px; display: inline-block; font-size: 12px; font-weight: bold; margin-bottom: 10px;">🚨 BREAKING NEWS</div>
{{- end}}
      <h3 style="color: #0d6efd; margin: 10px 0; font-size: 18px; line-height: 1.4;">{{.Title}}</h3>
      <div style="background: #f8f9fa; padding: 15px; border-left: 4px solid #0d6efd; margin: 15px 0;">
        <p style="color: #666; margin: 0; line-height: 1.6;">{{.Excerpt}}</p>
      </div>
      <div style="margin-top: 15px;">
        <small style="color: #999;">📂 {{.Category}} | 👁️ {{.ViewsCount}} views | ⏱️ {{.ReadingTime}} min read</small>
        <small style="color: #999;">{{articleDate .CreatedAt}}</small>
      </div>
    </div>
{{end}}
    <div style="background: #0d6efd; color: white; padding: 20px; border-radius: 8px; text-align: center; margin-top: 30px;">
      <h3 style="margin: 0 0 10px 0;">Stay Connected</h3>
      <p style="margin: 0; font-size: 14px;">Visit {{if .SiteURL}}<a href="{{.SiteURL}}" style="color: white;">{{.SiteName}}</a>{{else}}{{.SiteName}}{{end}} for more breaking news and updates throughout the day.</p>
    </div>
    <hr style="border: none; border-top: 1px solid #dee2e6; margin: 30px 0;">
    <p style="color: #999; font-size: 12px; text-align: center;">You're receiving this email because you subscribed to {{.SiteName}} newsletter.<br>© {{.Year}} {{.SiteName}}. All rights reserved.</p>
  </div>
</body>
</html>
`
