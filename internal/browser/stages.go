package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/berth-dev/nftbatch/internal/execute"
	"github.com/berth-dev/nftbatch/internal/items"
)

var chainLabels = map[items.Chain]string{
	items.ChainEthereum: "Ethereum",
	items.ChainPolygon:  "Polygon",
	items.ChainKlaytn:   "Klaytn",
	items.ChainSolana:   "Solana",
}

// Stages returns the executors for every stage.
func (m *Marketplace) Stages() []execute.Stage {
	return []execute.Stage{
		execute.StageFunc{Stage: items.StageUpload, Fn: m.upload},
		execute.StageFunc{Stage: items.StageSale, Fn: m.sell},
		execute.StageFunc{Stage: items.StageDelete, Fn: m.remove},
	}
}

// fillRowsScript writes rows into the inputs of the open attribute dialog,
// one table row per entry.
func fillRowsScript(rows [][]string) string {
	b, _ := json.Marshal(rows)
	return fmt.Sprintf(`(() => {
	const rows = %s;
	const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, "value").set;
	const dialog = document.querySelector('[role="dialog"]');
	if (!dialog) return false;
	const trs = dialog.querySelectorAll("tbody tr");
	if (trs.length < rows.length) return false;
	rows.forEach((row, i) => {
		const inputs = trs[i].querySelectorAll("input");
		row.forEach((v, j) => {
			if (!inputs[j]) return;
			setter.call(inputs[j], v);
			inputs[j].dispatchEvent(new Event("input", {bubbles: true}));
		});
	});
	return true;
})()`, string(b))
}

func traitRows(traits []items.Trait) [][]string {
	rows := make([][]string, 0, len(traits))
	for _, t := range traits {
		rows = append(rows, []string{t.Type, t.Name})
	}
	return rows
}

func statRows(stats []items.Stat) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{s.Name, strconv.Itoa(s.Value), strconv.Itoa(s.Max)})
	}
	return rows
}

// attributes fills one of the properties, levels or stats dialogs.
func attributes(label string, rows [][]string) chromedp.Action {
	if len(rows) == 0 {
		return chromedp.Tasks{}
	}
	tasks := chromedp.Tasks{clickText(buttons, shortWait, "Add "+label)}
	for i := 1; i < len(rows); i++ {
		tasks = append(tasks, clickText(buttons, shortWait, "Add more"))
	}
	return append(tasks,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := until(ctx, fillRowsScript(rows), shortWait, nil); err != nil {
				return fmt.Errorf("filling %s: %w", label, err)
			}
			return nil
		}),
		clickText(buttons, shortWait, "Save"),
	)
}

func (m *Marketplace) upload(ctx context.Context, sess execute.Session, item items.WorkItem) (execute.StageResult, error) {
	s, err := asSession(sess)
	if err != nil {
		return execute.StageResult{}, err
	}
	file, err := filepath.Abs(item.FilePath)
	if err != nil {
		return execute.StageResult{}, err
	}

	form := chromedp.Tasks{
		chromedp.Navigate(m.url("/asset/create")),
		chromedp.WaitReady(selFileInput, chromedp.ByQuery),
		chromedp.SetUploadFiles(selFileInput, []string{file}, chromedp.ByQuery),
		fill(selName, item.Name),
	}
	if item.ExternalLink != "" {
		form = append(form, fill(selExternalLink, item.ExternalLink))
	}
	if item.Description != "" {
		form = append(form, fill(selDescription, item.Description))
	}
	if item.Collection != "" {
		form = append(form,
			chromedp.Click(selCollection, chromedp.ByQuery),
			clickText(selOption, shortWait, item.Collection),
		)
	}
	form = append(form,
		attributes("properties", traitRows(item.Properties)),
		attributes("levels", statRows(item.Levels)),
		attributes("stats", statRows(item.Stats)),
	)
	if item.UnlockableContent != "" {
		form = append(form,
			chromedp.Click(selUnlockable, chromedp.ByQuery),
			fill(selUnlockText, item.UnlockableContent),
		)
	}
	if item.Sensitive {
		form = append(form, chromedp.Click(selSensitive, chromedp.ByQuery))
	}
	form = append(form, fill(selSupply, strconv.Itoa(item.Supply)))
	if label, ok := chainLabels[item.Chain]; ok {
		form = append(form,
			chromedp.Click(selChain, chromedp.ByQuery),
			clickText(selOption, shortWait, label),
		)
	}
	form = append(form, clickText(buttons, shortWait, "Create"))

	if err := s.RunActions(ctx, form); err != nil {
		return execute.StageResult{}, fmt.Errorf("filling create form: %w", err)
	}
	if err := m.solveCaptcha(ctx, s); err != nil {
		return execute.StageResult{}, err
	}

	var url string
	if err := s.RunActions(ctx, waitURL("/assets/", longWait, &url)); err != nil {
		return execute.StageResult{}, err
	}
	return execute.StageResult{URL: url}, nil
}

func (m *Marketplace) sell(ctx context.Context, sess execute.Session, item items.WorkItem) (execute.StageResult, error) {
	s, err := asSession(sess)
	if err != nil {
		return execute.StageResult{}, err
	}
	if item.URL == "" {
		return execute.StageResult{}, fmt.Errorf("no item page to list")
	}

	form := chromedp.Tasks{
		chromedp.Navigate(strings.TrimRight(item.URL, "/") + "/sell"),
		fill(selPrice, item.Price),
		chromedp.Click(selDuration, chromedp.ByQuery),
		clickText(selOption, shortWait, item.Duration),
	}
	if item.Quantity > 1 {
		form = append(form, fill(selQuantity, strconv.Itoa(item.Quantity)))
	}
	if item.SpecificBuyer != "" {
		form = append(form,
			chromedp.Click(selBuyerToggle, chromedp.ByQuery),
			fill(selBuyer, item.SpecificBuyer),
		)
	}
	form = append(form, clickText(buttons, shortWait, "Complete listing"))

	if err := s.RunActions(ctx, form); err != nil {
		return execute.StageResult{}, fmt.Errorf("filling listing form: %w", err)
	}
	if err := m.Wallet.Approve(ctx, s, m.popupTimeout()); err != nil {
		return execute.StageResult{}, fmt.Errorf("signing listing: %w", err)
	}
	err = s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return until(ctx, findTextScript("h4, h3, div", []string{"Your item has been listed!", "Your NFT is listed!"})+" !== null", longWait, nil)
	}))
	if err != nil {
		return execute.StageResult{}, fmt.Errorf("listing not confirmed: %w", err)
	}
	return execute.StageResult{}, nil
}

func (m *Marketplace) remove(ctx context.Context, sess execute.Session, item items.WorkItem) (execute.StageResult, error) {
	s, err := asSession(sess)
	if err != nil {
		return execute.StageResult{}, err
	}
	if item.URL == "" {
		return execute.StageResult{}, fmt.Errorf("no item page to delete")
	}

	var after string
	err = s.RunActions(ctx,
		chromedp.Navigate(strings.TrimRight(item.URL, "/")+"/edit"),
		clickText(buttons, longWait, "Delete item"),
		// The confirmation dialog repeats the label.
		clickText(`[role="dialog"] button`, shortWait, "Delete item"),
		waitURL("/account", longWait, &after),
	)
	if err != nil {
		return execute.StageResult{}, fmt.Errorf("deleting item: %w", err)
	}
	return execute.StageResult{}, nil
}
