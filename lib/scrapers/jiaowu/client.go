package jiaowu

import (
	"context"
	"encoding/json"
	"fmt"
	"gradewatch/lib/restyutil"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/jiaowu")

var LoginFailed = fmt.Errorf("Failed to login to your account.")

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:72.0) Gecko/20100101 Firefox/72.0"

const DefaultPassportUrl = "https://passport.ustc.edu.cn/login"
const DefaultJiaowuUrl = "https://jw.ustc.edu.cn"

var instrumentOutput restyutil.InstrumentOutput

func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

type Client struct {
	PassportUrl *url.URL
	JiaowuUrl   *url.URL
	Http        *resty.Client
}

type ClientOptions struct {
	// the full url of the cas login endpoint, defaults to the ustc
	// passport
	PassportUrl string
	// the base url of the academic affairs system
	JiaowuUrl string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.PassportUrl == "" {
		opts.PassportUrl = DefaultPassportUrl
	}
	if opts.JiaowuUrl == "" {
		opts.JiaowuUrl = DefaultJiaowuUrl
	}

	passportUrl, err := url.Parse(opts.PassportUrl)
	if err != nil {
		return nil, err
	}
	jiaowuUrl, err := url.Parse(opts.JiaowuUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)

	client.SetHeader("user-agent", userAgent)
	// the cas login bounces between the passport and the jiaowu system
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(
		passportUrl.Hostname(),
		jiaowuUrl.Hostname(),
	))
	client.SetTimeout(time.Second * 30)

	restyutil.InstrumentClient(client, tracer, instrumentOutput)

	c := &Client{
		PassportUrl: passportUrl,
		JiaowuUrl:   jiaowuUrl,
		Http:        client,
	}
	return c, nil
}

func (c *Client) LoginUsernamePassword(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:LoginUsernamePassword")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"model":    "uplogin.jsp",
			"service":  c.JiaowuUrl.JoinPath("ucas-sso/login").String(),
			"warn":     "",
			"showCode": "",
			"username": username,
			"password": password,
			"button":   "",
		}).
		Post(c.PassportUrl.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	// a successful login lands on the jiaowu home page after the cas
	// redirects, anything else means the portal bounced us
	finalUrl := res.RawResponse.Request.URL.String()
	if !strings.Contains(finalUrl, "/home") {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}

	return nil
}

type Semester struct {
	Id         int64  `json:"id"`
	NameZh     string `json:"nameZh"`
	NameEn     string `json:"nameEn"`
	SchoolYear string `json:"schoolYear"`
	Current    bool   `json:"current"`
}

// Semesters fetches the semester catalog in the order the portal
// reports it.
func (c *Client) Semesters(ctx context.Context) ([]Semester, error) {
	ctx, span := tracer.Start(ctx, "client:Semesters")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.JiaowuUrl.JoinPath("for-std/grade/sheet/getSemesters").String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch semesters")
		return nil, err
	}

	var semesters []Semester
	err = json.Unmarshal(res.Body(), &semesters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse semesters")
		return nil, fmt.Errorf("parse semesters: %w", err)
	}
	return semesters, nil
}

// GradeList fetches the raw grade sheet. `semesterIds` narrows it down
// to a comma separated list of semester ids, the empty string means
// every semester.
func (c *Client) GradeList(ctx context.Context, semesterIds string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:GradeList")
	defer span.End()
	span.SetAttributes(attribute.String("semester_ids", semesterIds))

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"trainTypeId": "1",
			"semesterIds": semesterIds,
		}).
		Get(c.JiaowuUrl.JoinPath("for-std/grade/sheet/getGradeList").String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch grade list")
		return "", err
	}
	return res.String(), nil
}

// ClosestSemester returns the catalog name most similar to `name`,
// handy for hinting at typos in semester filters.
func ClosestSemester(catalog []Semester, name string) string {
	var mostSimilarity float64
	var mostSimilar string
	for _, s := range catalog {
		similarity := matchr.JaroWinkler(name, s.NameZh, false)
		if similarity > mostSimilarity {
			mostSimilarity = similarity
			mostSimilar = s.NameZh
		}
	}
	return mostSimilar
}
