package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/pkg/errors"
)

const elementKey = "element-6066-11e4-a52e-4f735466cecf"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client drives one remote browser page over the W3C WebDriver wire
// protocol. One client owns one session; Close deletes it.
type Client struct {
	httpClient HTTPClient
	baseURL    string
	sessionID  string
}

// NewFactory returns a factory that opens a fresh session on the remote
// WebDriver endpoint (chromedriver, a selenium grid) for every action.
func NewFactory(baseURL string) boards.DriverFactory {
	return func(ctx context.Context) (boards.Driver, error) {
		return NewSession(ctx, baseURL)
	}
}

func NewSession(ctx context.Context, baseURL string) (*Client, error) {

	client := &Client{httpClient: &http.Client{}, baseURL: baseURL}

	payload := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
				"goog:chromeOptions": map[string]any{
					"args": []string{"--headless=new", "--disable-gpu", "--window-size=1280,1024"},
				},
			},
		},
	}

	body, err := client.sendRequest(ctx, http.MethodPost, baseURL+"/session", payload)
	if err != nil {
		return nil, fmt.Errorf("error creating webdriver session: %w", err)
	}

	var response struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error decoding JSON response: %v", err)
	}
	if response.Value.SessionID == "" {
		return nil, errors.New("webdriver returned no session id")
	}

	client.sessionID = response.Value.SessionID
	return client, nil
}

func (c *Client) SetHTTPClient(client HTTPClient) {
	c.httpClient = client
}

func (c *Client) Navigate(ctx context.Context, url string) error {
	_, err := c.sendRequest(ctx, http.MethodPost, c.sessionURL("/url"), map[string]string{"url": url})
	return err
}

func (c *Client) Fill(ctx context.Context, selector, value string) error {

	elementID, err := c.findElement(ctx, selector)
	if err != nil {
		return err
	}

	elementURL := c.sessionURL("/element/" + elementID)
	if _, err = c.sendRequest(ctx, http.MethodPost, elementURL+"/clear", struct{}{}); err != nil {
		return err
	}

	_, err = c.sendRequest(ctx, http.MethodPost, elementURL+"/value", map[string]string{"text": value})
	return err
}

func (c *Client) Click(ctx context.Context, selector string) error {

	elementID, err := c.findElement(ctx, selector)
	if err != nil {
		return err
	}

	_, err = c.sendRequest(ctx, http.MethodPost, c.sessionURL("/element/"+elementID+"/click"), struct{}{})
	return err
}

func (c *Client) Exists(ctx context.Context, selector string) (bool, error) {
	_, err := c.findElement(ctx, selector)
	if errors.Is(err, boards.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Text(ctx context.Context, selector string) (string, error) {

	elementID, err := c.findElement(ctx, selector)
	if err != nil {
		return "", err
	}

	body, err := c.sendRequest(ctx, http.MethodGet, c.sessionURL("/element/"+elementID+"/text"), nil)
	if err != nil {
		return "", err
	}
	return decodeStringValue(body)
}

func (c *Client) TextAll(ctx context.Context, selector string) ([]string, error) {

	elementIDs, err := c.findElements(ctx, selector)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, elementID := range elementIDs {
		body, err := c.sendRequest(ctx, http.MethodGet, c.sessionURL("/element/"+elementID+"/text"), nil)
		if err != nil {
			return nil, err
		}
		text, err := decodeStringValue(body)
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (c *Client) AttrAll(ctx context.Context, selector, attribute string) ([]string, error) {

	elementIDs, err := c.findElements(ctx, selector)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, elementID := range elementIDs {
		body, err := c.sendRequest(ctx, http.MethodGet,
			c.sessionURL("/element/"+elementID+"/attribute/"+attribute), nil)
		if err != nil {
			return nil, err
		}
		value, err := decodeStringValue(body)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

func (c *Client) PageSource(ctx context.Context) (string, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, c.sessionURL("/source"), nil)
	if err != nil {
		return "", err
	}
	return decodeStringValue(body)
}

func (c *Client) CurrentURL(ctx context.Context) (string, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, c.sessionURL("/url"), nil)
	if err != nil {
		return "", err
	}
	return decodeStringValue(body)
}

func (c *Client) Close() error {
	_, err := c.sendRequest(context.Background(), http.MethodDelete, c.sessionURL(""), nil)
	return err
}

func (c *Client) findElement(ctx context.Context, selector string) (string, error) {

	payload := map[string]string{"using": "css selector", "value": selector}
	body, err := c.sendRequest(ctx, http.MethodPost, c.sessionURL("/element"), payload)
	if err != nil {
		return "", err
	}

	var response struct {
		Value map[string]string `json:"value"`
	}
	if err = json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("error decoding JSON response: %v", err)
	}

	elementID, ok := response.Value[elementKey]
	if !ok || elementID == "" {
		return "", boards.ErrElementNotFound
	}
	return elementID, nil
}

func (c *Client) findElements(ctx context.Context, selector string) ([]string, error) {

	payload := map[string]string{"using": "css selector", "value": selector}
	body, err := c.sendRequest(ctx, http.MethodPost, c.sessionURL("/elements"), payload)
	if err != nil {
		return nil, err
	}

	var response struct {
		Value []map[string]string `json:"value"`
	}
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error decoding JSON response: %v", err)
	}

	var elementIDs []string
	for _, element := range response.Value {
		if elementID := element[elementKey]; elementID != "" {
			elementIDs = append(elementIDs, elementID)
		}
	}
	return elementIDs, nil
}

func (c *Client) sessionURL(path string) string {
	return c.baseURL + "/session/" + c.sessionID + path
}

func (c *Client) sendRequest(ctx context.Context, method string, url string, payload any) ([]byte, error) {

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	return c.handleResponse(resp)
}

func (c *Client) handleResponse(resp *http.Response) ([]byte, error) {

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %v", err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var failure struct {
		Value struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"value"`
	}
	if err = json.Unmarshal(body, &failure); err == nil && failure.Value.Error == "no such element" {
		return nil, boards.ErrElementNotFound
	}

	return nil, fmt.Errorf("request failed with status %v, body: %v", resp.StatusCode, string(body))
}

func decodeStringValue(body []byte) (string, error) {
	var response struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("error decoding JSON response: %v", err)
	}
	return response.Value, nil
}
