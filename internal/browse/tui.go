// Package browse is the interactive terminal UI over the collected-article
// corpus: a split-pane list of everything collected versus everything
// analyzed, with a detail view that can trigger analysis on demand.
package browse

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/critiquewire/critiquewire/internal/model"
)

// Lines per article item in the list view (title + subtitle + blank separator).
const articleItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	articleTitleStyle = lipgloss.NewStyle().
				Bold(true)

	articleSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// ArticleAnalyzer triggers on-demand analysis of a stored article. The
// orchestrator satisfies it.
type ArticleAnalyzer interface {
	AnalyzeArticle(ctx context.Context, articleID string, kinds []model.AnalysisKind, mode model.ExecutionMode) (*model.AnalysisJob, error)
}

// jobLoadedMsg is sent when an async load of an existing analysis completes.
type jobLoadedMsg struct {
	job *model.AnalysisJob
	err error
}

// articleAnalyzedMsg is sent when an on-demand analysis completes.
type articleAnalyzedMsg struct {
	articleID string
	job       *model.AnalysisJob
	err       error
}

type browseModel struct {
	allArticles      []model.CollectedArticle
	analyzedArticles []model.CollectedArticle
	leftViewport     viewport.Model
	rightViewport    viewport.Model
	activePane       int // 0=left, 1=right
	leftCursor       int
	rightCursor      int
	width            int
	height           int
	ready            bool

	// Detail view state
	view           viewState
	detailArticle  model.CollectedArticle
	detailJob      *model.AnalysisJob
	detailLoading  bool
	detailError    string
	detailViewport viewport.Model
	showBody       bool

	jobs     model.JobStore
	analyzer ArticleAnalyzer

	analyzeLoading bool
	analyzeError   string
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case jobLoadedMsg:
		m.detailLoading = false
		if msg.err != nil {
			m.detailError = fmt.Sprintf("failed to load analysis: %v", msg.err)
		} else {
			m.detailError = ""
			m.detailJob = msg.job
		}
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil

	case articleAnalyzedMsg:
		m.analyzeLoading = false
		if msg.err != nil {
			m.analyzeError = fmt.Sprintf("analysis failed: %v", msg.err)
		} else {
			m.analyzeError = ""
			m.detailJob = msg.job
			m.detailArticle.AnalysisJobID = msg.job.ID
			m.updateArticleInLists(m.detailArticle)
		}
		m.detailViewport.SetContent(m.renderDetail())
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browseModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m browseModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		m.recalcContent()
		return m, nil
	case "o":
		openURL(m.detailArticle.URL)
		return m, nil
	case "r":
		if m.detailArticle.Body != "" {
			m.showBody = !m.showBody
			m.detailViewport.SetContent(m.renderDetail())
			m.detailViewport.SetYOffset(0)
		}
		return m, nil
	case "a":
		if m.analyzer != nil && !m.analyzeLoading && m.detailJob == nil {
			m.analyzeLoading = true
			m.analyzeError = ""
			m.detailViewport.SetContent(m.renderDetail())
			return m, m.analyzeCmd(m.detailArticle)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m browseModel) analyzeCmd(article model.CollectedArticle) tea.Cmd {
	analyzer := m.analyzer
	return func() tea.Msg {
		job, err := analyzer.AnalyzeArticle(context.Background(), article.ID, model.AllKinds(), model.ModeSync)
		return articleAnalyzedMsg{articleID: article.ID, job: job, err: err}
	}
}

func (m browseModel) loadJobCmd(jobID string) tea.Cmd {
	jobs := m.jobs
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		job, err := jobs.GetJob(ctx, jobID)
		return jobLoadedMsg{job: job, err: err}
	}
}

func (m *browseModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.allArticles)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.analyzedArticles)-1, 0))
	}
}

func (m *browseModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * articleItemHeight
	cursorBottom := cursorTop + articleItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m browseModel) openDetailView() (tea.Model, tea.Cmd) {
	articles := m.activeArticles()
	cursor := m.activeCursor()
	if len(articles) == 0 {
		return m, nil
	}

	article := articles[cursor]
	m.view = viewDetail
	m.detailArticle = article
	m.detailJob = nil
	m.detailError = ""
	m.analyzeError = ""
	m.showBody = false
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())

	// Load the existing analysis if the article already has one.
	if m.jobs != nil && article.AnalysisJobID != "" {
		m.detailLoading = true
		return m, m.loadJobCmd(article.AnalysisJobID)
	}

	return m, nil
}

func (m *browseModel) updateArticleInLists(article model.CollectedArticle) {
	for i := range m.allArticles {
		if m.allArticles[i].ID == article.ID {
			m.allArticles[i] = article
			break
		}
	}
	for i := range m.analyzedArticles {
		if m.analyzedArticles[i].ID == article.ID {
			m.analyzedArticles[i] = article
			return
		}
	}
	m.analyzedArticles = append(m.analyzedArticles, article)
	sortArticlesByDate(m.analyzedArticles)
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	m.leftViewport.SetContent(renderArticles(m.allArticles, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderArticles(m.analyzedArticles, m.rightCursor, m.activePane == 1))
}

func (m browseModel) activeArticles() []model.CollectedArticle {
	if m.activePane == 0 {
		return m.allArticles
	}
	return m.analyzedArticles
}

func (m browseModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m browseModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" All Articles (%d)", len(m.allArticles))
	rightHeader := fmt.Sprintf(" Analyzed (%d)", len(m.analyzedArticles))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	statusText := fmt.Sprintf(" %d collected | %d analyzed    ←/→/Tab switch  ↑/↓ cursor  Enter detail  q quit",
		len(m.allArticles), len(m.analyzedArticles))
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Article Details")
	if m.detailLoading {
		title += "  (loading...)"
	}

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	if m.detailArticle.Body != "" {
		if m.analyzer != nil && m.detailJob == nil && !m.analyzeLoading {
			statusText = " o open URL  r body  a analyze  esc/backspace back  ↑/↓ scroll  q quit"
		} else {
			statusText = " o open URL  r body  esc/backspace back  ↑/↓ scroll  q quit"
		}
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) renderDetail() string {
	a := m.detailArticle
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Title", a.Title)
	addField("Feed", a.SourceFeed)
	addField("URL", a.URL)
	if a.PublishedAt != nil {
		addField("Published", a.PublishedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	addField("Collected", a.CollectedAt.UTC().Format("2006-01-02 15:04 MST"))

	if a.Summary != "" {
		wrapWidth := max(m.width-8, 20)
		b.WriteByte('\n')
		b.WriteString(bodyStyle.Render(wordWrap(a.Summary, wrapWidth)) + "\n")
	}

	if m.detailError != "" {
		b.WriteByte('\n')
		b.WriteString(errStyle.Render("⚠ "+m.detailError) + "\n")
	}
	if m.analyzeError != "" {
		b.WriteByte('\n')
		b.WriteString(errStyle.Render("⚠ "+m.analyzeError) + "\n")
	}

	m.renderAnalysis(&b)

	if a.Body != "" {
		b.WriteByte('\n')
		if m.showBody {
			wrapWidth := max(m.width-8, 20)
			b.WriteString(m.divider("── Article Text ") + "\n\n")
			b.WriteString(bodyStyle.Render(wordWrap(a.Body, wrapWidth)) + "\n")
		} else {
			b.WriteString(hintStyle.Render("  press r to read article text") + "\n")
		}
	}

	return b.String()
}

func (m browseModel) divider(label string) string {
	wrapWidth := max(m.width-8, 20)
	fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
	return dividerStyle.Render(label + fill)
}

func (m browseModel) renderAnalysis(b *strings.Builder) {
	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	if m.analyzeLoading {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  analyzing article...") + "\n")
		return
	}

	job := m.detailJob
	if job == nil {
		if m.analyzer != nil && !m.detailLoading {
			b.WriteByte('\n')
			b.WriteString(hintStyle.Render("  press a to analyze this article") + "\n")
		}
		return
	}

	b.WriteByte('\n')
	b.WriteString(m.divider("── Analysis ") + "\n\n")
	addField("Status", string(job.Status))
	if job.Error != nil {
		addField("Error", job.Error.Message)
	}

	r := job.Result
	if r == nil {
		return
	}
	addField("Score", fmt.Sprintf("%.2f", r.Score))
	addField("Model", r.Model)

	wrapWidth := max(m.width-8, 20)

	if r.Summary != nil {
		b.WriteByte('\n')
		addField("Headline", r.Summary.Headline)
		b.WriteString(bodyStyle.Render(wordWrap(r.Summary.Text, wrapWidth)) + "\n")
		for _, pt := range r.Summary.KeyPoints {
			if pt != "" {
				b.WriteString(detailValueStyle.Render("  • "+pt) + "\n")
			}
		}
	}
	if r.Bias != nil {
		b.WriteByte('\n')
		addField("Bias", fmt.Sprintf("%s (%.2f)", r.Bias.Leaning, r.Bias.Score))
		if len(r.Bias.BiasedPhrases) > 0 {
			addField("Phrases", strings.Join(r.Bias.BiasedPhrases, "; "))
		}
	}
	if r.Sentiment != nil {
		addField("Sentiment", fmt.Sprintf("%s (%.2f)", r.Sentiment.Overall, r.Sentiment.Score))
	}
	if r.Credibility != nil {
		addField("Credibility", fmt.Sprintf("%s (%.2f)", r.Credibility.Rating, r.Credibility.Score))
		if len(r.Credibility.RedFlags) > 0 {
			addField("Red Flags", strings.Join(r.Credibility.RedFlags, "; "))
		}
	}

	if len(r.Claims) > 0 {
		verdicts := make(map[string]model.FactCheckVerdict, len(r.FactCheck))
		for _, v := range r.FactCheck {
			verdicts[v.ClaimID] = v
		}
		b.WriteByte('\n')
		b.WriteString(m.divider("── Claims ") + "\n\n")
		for _, c := range r.Claims {
			line := fmt.Sprintf("  • [%s] %s", c.Importance, c.Statement)
			if v, ok := verdicts[c.ID]; ok {
				line += fmt.Sprintf(" — %s (%.2f)", v.Verdict, v.Confidence)
			}
			b.WriteString(detailValueStyle.Render(wordWrap(line, wrapWidth)) + "\n")
		}
	}

	if len(r.FailedKinds) > 0 {
		b.WriteByte('\n')
		kinds := make([]string, len(r.FailedKinds))
		for i, k := range r.FailedKinds {
			kinds[i] = string(k)
		}
		b.WriteString(hintStyle.Render("  unavailable: "+strings.Join(kinds, ", ")) + "\n")
	}
}

func renderArticles(articles []model.CollectedArticle, cursor int, isActive bool) string {
	if len(articles) == 0 {
		return "  (no articles)"
	}

	var b strings.Builder
	for i, a := range articles {
		isSelected := isActive && i == cursor

		titleSt := articleTitleStyle
		subtitleSt := articleSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedTitleStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(a.Title))
		b.WriteByte('\n')

		published := "n/a"
		if a.PublishedAt != nil {
			published = a.PublishedAt.Format("2006-01-02")
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s", a.SourceFeed, published)))
		b.WriteByte('\n')

		if i < len(articles)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func sortArticlesByDate(articles []model.CollectedArticle) {
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].CollectedAt.After(articles[j].CollectedAt)
	})
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunBrowseTUI launches the interactive split-pane article browser.
// analyzer may be nil; when non-nil the 'a' key triggers analysis in the
// detail view.
func RunBrowseTUI(articles []model.CollectedArticle, jobs model.JobStore, analyzer ArticleAnalyzer) error {
	sortArticlesByDate(articles)

	var analyzed []model.CollectedArticle
	for _, a := range articles {
		if a.AnalysisJobID != "" {
			analyzed = append(analyzed, a)
		}
	}

	m := browseModel{
		allArticles:      articles,
		analyzedArticles: analyzed,
		jobs:             jobs,
		analyzer:         analyzer,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
