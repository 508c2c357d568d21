package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ModelsTestSuite struct {
	suite.Suite
}

func float(v float64) *float64 { return &v }

func (s *ModelsTestSuite) TestSettingsBuiltInFallbacks() {
	doc := &SitesDocument{Sites: []SiteConfig{{ID: "a", URL: "https://a.example"}}}

	settings := doc.Settings(doc.Sites[0])
	s.Equal(DefaultThreshold, settings.Threshold)
	s.Equal(Viewport{Width: 1280, Height: 720}, settings.Viewport)
	s.Equal(float64(DefaultDelaySeconds), settings.Delay)
}

func (s *ModelsTestSuite) TestSettingsPrecedence() {
	doc := &SitesDocument{
		Sites: []SiteConfig{
			{ID: "a", URL: "https://a.example", Threshold: float(0.2)},
			{ID: "b", URL: "https://b.example", Viewport: &Viewport{Width: 375, Height: 812}, Delay: float(0)},
		},
		Defaults: SiteDefaults{
			Threshold: float(0.1),
			Viewport:  &Viewport{Width: 1920, Height: 1080},
			Delay:     float(5),
		},
	}

	a := doc.Settings(doc.Sites[0])
	s.Equal(0.2, a.Threshold)
	s.Equal(Viewport{Width: 1920, Height: 1080}, a.Viewport)
	s.Equal(5.0, a.Delay)

	b := doc.Settings(doc.Sites[1])
	s.Equal(0.1, b.Threshold)
	s.Equal(Viewport{Width: 375, Height: 812}, b.Viewport)
	s.Equal(0.0, b.Delay)
}

func (s *ModelsTestSuite) TestFind() {
	doc := &SitesDocument{Sites: []SiteConfig{{ID: "a"}, {ID: "b", Name: "B"}}}

	site, ok := doc.Find("b")
	s.True(ok)
	s.Equal("B", site.Name)

	_, ok = doc.Find("missing")
	s.False(ok)
}

func (s *ModelsTestSuite) TestCloneIsDeep() {
	code := 200
	original := SiteStatus{
		ID:            "a",
		StatusCode:    &code,
		ConsoleErrors: []string{"boom"},
		DiffPercent:   float(0.5),
	}

	clone := original.Clone()
	*clone.StatusCode = 0
	*clone.DiffPercent = 0
	clone.ConsoleErrors[0] = "changed"

	s.Equal(200, *original.StatusCode)
	s.Equal(0.5, *original.DiffPercent)
	s.Equal("boom", original.ConsoleErrors[0])
}

func (s *ModelsTestSuite) TestEmptyConsoleErrorsAreSerialized() {
	code := 200
	data, err := json.Marshal(SiteStatus{ID: "a", StatusCode: &code, ConsoleErrors: []string{}, Status: StatusOK})
	s.Require().NoError(err)
	s.Contains(string(data), `"consoleErrors":[]`)
	s.Contains(string(data), `"statusCode":200`)
}

func (s *ModelsTestSuite) TestCaptureSucceeded() {
	var nilResult *CaptureResult
	s.False(nilResult.Succeeded())
	s.False((&CaptureResult{Errors: []string{"timeout"}}).Succeeded())
	s.True((&CaptureResult{Screenshot: []byte{1}}).Succeeded())
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsTestSuite))
}
