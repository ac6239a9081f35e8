package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skip2/go-qrcode"

	"guia-paracuru/internal/infra/i18n"
	"guia-paracuru/internal/paywall"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F2A900"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	qrBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type snapshotMsg paywall.Snapshot

type model struct {
	tr      *i18n.Translator
	machine *paywall.Machine
	changes <-chan paywall.Snapshot
	snap    paywall.Snapshot
	qr      string // rendered once per payment
	qrFor   string
	aborted bool
}

func newModel(tr *i18n.Translator, m *paywall.Machine, changes <-chan paywall.Snapshot) model {
	return model{tr: tr, machine: m, changes: changes, snap: m.Snapshot()}
}

func waitForChange(ch <-chan paywall.Snapshot) tea.Cmd {
	return func() tea.Msg { return snapshotMsg(<-ch) }
}

func (m model) Init() tea.Cmd { return waitForChange(m.changes) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			if m.snap.State == paywall.StateIntro {
				m.machine.Start()
			}
		}
	case snapshotMsg:
		m.snap = paywall.Snapshot(msg)
		if c := m.snap.Checkout; c != nil && c.PaymentID != m.qrFor {
			m.qr, m.qrFor = renderQR(m.tr, c.QRCode), c.PaymentID
		}
		switch m.snap.State {
		case paywall.StateSuccess, paywall.StateError:
			return m, tea.Quit
		}
		return m, waitForChange(m.changes)
	}
	return m, nil
}

func (m model) View() string {
	tr := m.tr
	var b strings.Builder
	b.WriteString(titleStyle.Render(tr.T("title")))
	b.WriteString("\n\n")

	switch m.snap.State {
	case paywall.StateIntro:
		b.WriteString(tr.T("intro"))
		b.WriteString("\n")
	case paywall.StateLoading:
		b.WriteString(mutedStyle.Render(tr.T("loading")))
		b.WriteString("\n")
	case paywall.StateQRCode:
		c := m.snap.Checkout
		b.WriteString(tr.T("amount", strings.Replace(c.Amount.StringFixed(2), ".", ",", 1)))
		b.WriteString("\n")
		b.WriteString(qrBoxStyle.Render(m.qr))
		b.WriteString("\n\n" + tr.T("copy_paste") + "\n")
		b.WriteString(mutedStyle.Render(c.QRCode))
		b.WriteString("\n\n" + tr.T("waiting", countdown(m.snap.Remaining)) + "\n")
	case paywall.StateSuccess:
		b.WriteString(successStyle.Render(tr.T("success")))
		if !m.snap.PremiumExpiresAt.IsZero() {
			b.WriteString("\n" + tr.T("premium_until", formatDate(m.snap.PremiumExpiresAt)))
		}
		b.WriteString("\n")
	case paywall.StateError:
		b.WriteString(errorStyle.Render(errorMessage(tr, m.snap)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(tr.T("quit_hint")))
	b.WriteString("\n")
	return b.String()
}

func renderQR(tr *i18n.Translator, payload string) string {
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return errorStyle.Render(tr.T("qr_failed", err.Error()))
	}
	return strings.TrimRight(q.ToSmallString(false), "\n")
}

func countdown(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatDate(t time.Time) string { return t.Local().Format("02/01/2006 15:04") }

var errorKeys = map[paywall.ErrorKind]string{
	paywall.ErrorExpired:     "err_expired",
	paywall.ErrorRejected:    "err_rejected",
	paywall.ErrorNotFound:    "err_not_found",
	paywall.ErrorProcessor:   "err_processor",
	paywall.ErrorRateLimited: "err_rate_limited",
}

func errorMessage(tr *i18n.Translator, s paywall.Snapshot) string {
	if s.ErrorKind == paywall.ErrorAlreadyEntitled {
		return tr.T("err_already_entitled", formatDate(s.EntitledUntil))
	}
	if key, ok := errorKeys[s.ErrorKind]; ok {
		return tr.T(key)
	}
	return tr.T("err_unavailable")
}

func renderActive(tr *i18n.Translator, until time.Time) string {
	return successStyle.Render(tr.T("premium_active")) + mutedStyle.Render(tr.T("until", formatDate(until)))
}
