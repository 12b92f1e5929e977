package services

import (
	"context"
	"encoding/base64"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/luckfunc/floorbot/internal/models"
)

const (
	trackedImageWidth   = 960
	trackedRenderBudget = 20 * time.Second
)

var trackedTemplate = template.Must(template.New("tracked").Parse(trackedHTMLTemplate))

type trackedRowView struct {
	Collection string
	Threshold  string
	LastPrice  string
	AddedAt    string
	Class      string
}

type trackedView struct {
	Title     string
	Timestamp string
	Rows      []trackedRowView
}

// HTMLRenderer renders a subscriber's tracked collections as a PNG card
// through a headless Chrome.
type HTMLRenderer struct {
	printer *message.Printer
	now     func() time.Time
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

func (r *HTMLRenderer) RenderTracked(ctx context.Context, tracked map[string]models.WatchRecord) ([]byte, error) {
	html, err := r.renderTrackedHTML(tracked)
	if err != nil {
		return nil, err
	}
	return renderHTMLToPNG(ctx, html, trackedImageWidth, estimateTrackedHeight(len(tracked)))
}

func (r *HTMLRenderer) renderTrackedHTML(tracked map[string]models.WatchRecord) (string, error) {
	view := trackedView{
		Title:     "Tracked Collections",
		Timestamp: r.now().UTC().Format("2006-01-02 15:04 MST"),
		Rows:      r.buildRowViews(tracked),
	}
	var builder strings.Builder
	if err := trackedTemplate.Execute(&builder, view); err != nil {
		return "", err
	}
	return builder.String(), nil
}

func (r *HTMLRenderer) buildRowViews(tracked map[string]models.WatchRecord) []trackedRowView {
	out := make([]trackedRowView, 0, len(tracked))
	for _, collection := range sortedCollections(tracked) {
		record := tracked[collection]
		row := trackedRowView{
			Collection: collection,
			Threshold:  "manual",
			LastPrice:  "pending",
			AddedAt:    record.AddedAt.UTC().Format("2006-01-02"),
			Class:      "muted",
		}
		if record.Threshold.Valid {
			row.Threshold = r.printer.Sprintf("±%v%%", record.Threshold.Decimal.InexactFloat64())
			row.Class = "armed"
		}
		if record.LastPrice.Valid {
			row.LastPrice = r.printer.Sprintf("%.3f %s", record.LastPrice.Decimal.InexactFloat64(), models.Currency)
		}
		out = append(out, row)
	}
	return out
}

func estimateTrackedHeight(rows int) int64 {
	const (
		basePadding  = 72
		titleHeight  = 42
		headerHeight = 44
		rowHeight    = 46
		footerHeight = 28
	)
	if rows < 1 {
		rows = 1
	}
	return int64(basePadding + titleHeight + headerHeight + footerHeight + rows*rowHeight)
}

func renderHTMLToPNG(parent context.Context, html string, width int, height int64) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, trackedRenderBudget)
	defer cancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(width), height),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

const trackedHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <style>
    :root {
      --bg: #ffffff;
      --text: #1f1f1f;
      --muted: #6f6f6f;
      --line: #f0f0f0;
      --header: #f7f7f7;
      --armed: #2563eb;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      background: var(--bg);
      font-family: "Inter", "Helvetica Neue", Arial, sans-serif;
      color: var(--text);
    }
    .container { width: 900px; padding: 28px 32px 32px 32px; }
    .title { font-size: 28px; font-weight: 600; margin-bottom: 14px; }
    .table { width: 100%; border-collapse: collapse; font-size: 18px; }
    .table thead th {
      background: var(--header);
      color: var(--muted);
      font-weight: 500;
      padding: 12px;
      text-align: left;
      border-bottom: 1px solid var(--line);
    }
    .table tbody td { padding: 12px; border-bottom: 1px solid var(--line); }
    .num { font-variant-numeric: tabular-nums; }
    .armed { color: var(--armed); }
    .muted { color: var(--muted); }
    .footer { margin-top: 12px; font-size: 14px; color: var(--muted); }
  </style>
</head>
<body>
  <div class="container">
    <div class="title">{{.Title}}</div>
    <table class="table">
      <thead>
        <tr>
          <th>Collection</th>
          <th class="num" style="width: 150px;">Threshold</th>
          <th class="num" style="width: 200px;">Last floor</th>
          <th style="width: 150px;">Since</th>
        </tr>
      </thead>
      <tbody>
        {{if .Rows}}
          {{range .Rows}}
            <tr>
              <td>{{.Collection}}</td>
              <td class="num {{.Class}}">{{.Threshold}}</td>
              <td class="num">{{.LastPrice}}</td>
              <td>{{.AddedAt}}</td>
            </tr>
          {{end}}
        {{else}}
          <tr>
            <td colspan="4" class="muted">No collections are being tracked</td>
          </tr>
        {{end}}
      </tbody>
    </table>
    <div class="footer">Updated {{.Timestamp}}</div>
  </div>
</body>
</html>`
