package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/retry"
	"github.com/shaiso/Harvester/internal/workerpool"
)

// FormExecutor выполняет задания form_fill и login: отправляет
// значения формы POST-запросом на target_url.
//
// Config (из task.Config):
//   - fields (map[string]any): поля формы (обязательно)
//   - плюс общие ключи FetchExecutor (headers, user_agent, timeout_sec)
type FormExecutor struct {
	fetch *FetchExecutor
}

// Execute отправляет форму.
func (e *FormExecutor) Execute(ctx context.Context, task *domain.Task) (workerpool.Result, error) {
	form, err := formValues(task.Config)
	if err != nil {
		return workerpool.Result{}, retry.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(task.Config))
	defer cancel()

	req, target, err := e.fetch.buildRequest(ctx, task, http.MethodPost, strings.NewReader(form.Encode()))
	if err != nil {
		return workerpool.Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return e.fetch.do(req, target, task)
}

// formValues собирает значения формы из конфигурации task.
func formValues(config map[string]any) (url.Values, error) {
	raw, ok := config["fields"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("form fields are required")
	}

	form := url.Values{}
	switch fields := raw.(type) {
	case map[string]any:
		for key, val := range fields {
			form.Set(key, fmt.Sprintf("%v", val))
		}
	case map[string]string:
		for key, val := range fields {
			form.Set(key, val)
		}
	default:
		return nil, fmt.Errorf("form fields must be a map, got %T", raw)
	}

	if len(form) == 0 {
		return nil, fmt.Errorf("form fields are empty")
	}
	return form, nil
}
