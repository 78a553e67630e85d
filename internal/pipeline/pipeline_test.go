package pipeline

import (
	"bytes"
	"delitos/internal/aggregate"
	"delitos/internal/coder"
	"delitos/internal/export"
	"delitos/internal/record"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const headerLine = "Año,Clave_Ent,Entidad,Cve. Municipio,Municipio,Bien jurídico afectado,Tipo de delito,Subtipo de delito,Modalidad," +
	"Enero,Febrero,Marzo,Abril,Mayo,Junio,Julio,Agosto,Septiembre,Octubre,Noviembre,Diciembre"

// cp1252：按源文件的 Windows-1252 编码生成测试输入
func cp1252(t *testing.T, lines ...string) io.Reader {
	t.Helper()
	b, err := charmap.Windows1252.NewEncoder().Bytes([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func artifacts(t *testing.T, res *Result) (string, string) {
	t.Helper()
	var d, j bytes.Buffer
	require.NoError(t, export.WriteDictionary(&d, res.Aggregator.Dictionary()))
	require.NoError(t, export.WriteIncidence(&j, res.Aggregator.Incidence()))
	return d.String(), j.String()
}

func TestScenarioA(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,Robo a transeúnte,Con violencia,0,0,3,0,0,0,0,0,0,0,0,0",
	), quiet())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, 0, res.Skipped)

	dict, js := artifacts(t, res)
	assert.Equal(t,
		"Tipo de delito,Subtipo de delito,Modalidad,CVETPO,CVESUB,CVEMOD,CVE\n"+
			"Robo,Robo a transeúnte,Con violencia,T01,S01,M01,T01S01M01\n", dict)
	assert.Equal(t, `{"T01S01M01":{"2020-03":{"09015":3}}}`, js)
}

func TestScenarioBPadding(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		"2020,9,Ciudad,15,Alcaldía,Patrimonio,Robo,A pie,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
	), quiet())
	require.NoError(t, err)
	muns := res.Aggregator.Incidence()["T01S01M01"]["2020-01"]
	assert.Equal(t, map[string]uint32{"00015": 1}, muns)
}

func TestScenarioCNumericCoercion(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		"2021,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,-1,,NA,2,0,0,0,0,0,0,0,0",
	), quiet())
	require.NoError(t, err)
	assert.Equal(t, aggregate.Incidence{"T01S01M01": {"2021-04": {"09015": 2}}}, res.Aggregator.Incidence())
}

func TestScenarioDSharedType(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A transeúnte,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A casa habitación,Sin violencia,1,0,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,De vehículo,Con arma blanca,1,0,0,0,0,0,0,0,0,0,0,0",
	), quiet())
	require.NoError(t, err)
	c := res.Aggregator.Coder()
	assert.Equal(t, 1, c.Len(coder.Type))
	assert.Equal(t, []coder.Entry{
		{Label: "A transeúnte", Code: "S01", Ordinal: 1},
		{Label: "A casa habitación", Code: "S02", Ordinal: 2},
		{Label: "De vehículo", Code: "S03", Ordinal: 3},
	}, c.Table(coder.Subtype))
	assert.Equal(t, 3, c.Len(coder.Modality))
	assert.Len(t, res.Aggregator.Dictionary(), 3)
	assert.Equal(t, []string{"T01S01M01", "T01S02M02", "T01S03M03"}, aggregate.SortedKeys(res.Aggregator.Incidence()))
}

func TestScenarioEDuplicateTriple(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,7,0,0,0,0,0,0,0,0,0,0",
	), quiet())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), res.Aggregator.Incidence()["T01S01M01"]["2020-02"]["09015"])
}

func TestScenarioFMalformedRowSkipped(t *testing.T) {
	valid1 := "2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0"
	valid2 := "2020,9,Ciudad,9016,Alcaldía,Patrimonio,Fraude,Fraude,Fraude,0,0,0,0,0,0,0,0,0,0,0,9"
	withBad, err := Run(cp1252(t, headerLine, valid1, "2020,9,Ciudad,9015,corta", valid2), quiet())
	require.NoError(t, err)
	assert.Equal(t, 1, withBad.Skipped)
	assert.Equal(t, 2, withBad.Rows)

	clean, err := Run(cp1252(t, headerLine, valid1, valid2), quiet())
	require.NoError(t, err)

	d1, j1 := artifacts(t, withBad)
	d2, j2 := artifacts(t, clean)
	assert.Equal(t, d2, d1)
	assert.Equal(t, j2, j1)
}

func TestBareQuoteKeptLiterally(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		`2020,9,Ciu"dad,9015,Alcaldía,Patrimonio,Robo,Robo de "autopartes",Con violencia,0,4,0,0,0,0,0,0,0,0,0,0`,
	), quiet())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Rows)

	dict, js := artifacts(t, res)
	assert.Equal(t,
		"Tipo de delito,Subtipo de delito,Modalidad,CVETPO,CVESUB,CVEMOD,CVE\n"+
			`Robo,"Robo de ""autopartes""",Con violencia,T01,S01,M01,T01S01M01`+"\n", dict)
	assert.Equal(t, `{"T01S01M01":{"2020-02":{"09015":4}}}`, js)
}

func TestBareQuoteInHeaderIsNotFatal(t *testing.T) {
	res, err := Run(cp1252(t, headerLine+`,Nota "interna"`,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0,x",
	), quiet())
	require.NoError(t, err)
	assert.Equal(t, `Nota "interna"`, res.Header[len(res.Header)-1])
	assert.Equal(t, 1, res.Rows)
}

func TestSchemaErrorIsFatal(t *testing.T) {
	_, err := Run(cp1252(t, headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0",
		"año2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0",
	), quiet())
	var se *record.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "año2020", se.Row[0], "the echoed row is the decoded one")
	assert.Equal(t, "Alcaldía", se.Row[4])
}

func TestMissingHeaderColumnIsFatalOnFirstRow(t *testing.T) {
	h := strings.Replace(headerLine, "Modalidad,", "Modalidad del delito,", 1)
	_, err := Run(cp1252(t, h,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0",
	), quiet())
	assert.ErrorIs(t, err, record.ErrMissingColumn)
}

func TestMissingHeaderColumnWithoutRowsSucceeds(t *testing.T) {
	res, err := Run(cp1252(t, "Año,Entidad"), quiet())
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
}

func TestDuplicateHeaderIsFatal(t *testing.T) {
	_, err := Run(cp1252(t, headerLine+",Enero"), quiet())
	assert.ErrorIs(t, err, record.ErrDuplicateColumn)
}

func TestEmptyInput(t *testing.T) {
	res, err := Run(strings.NewReader(""), quiet())
	require.NoError(t, err)
	d, j := artifacts(t, res)
	assert.Equal(t, "Tipo de delito,Subtipo de delito,Modalidad,CVETPO,CVESUB,CVEMOD,CVE\n", d)
	assert.Equal(t, "{}", j)
}

// failingReader：读完数据后失败一次，而不是返回 EOF
type failingReader struct {
	after  io.Reader
	failed bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.after.Read(p)
	if err == io.EOF && !f.failed {
		f.failed = true
		return n, errors.New("disk gone")
	}
	return n, err
}

func TestReadFailureIsFatal(t *testing.T) {
	_, err := Run(&failingReader{after: cp1252(t, headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,0,4,0,0,0,0,0,0,0,0,0,0",
	)}, quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestDeterministicOutputs(t *testing.T) {
	lines := []string{headerLine}
	types := []string{"Robo", "Homicidio", "Lesiones", "Daño a la propiedad"}
	for i := 0; i < 200; i++ {
		m := make([]string, 12)
		for k := range m {
			m[k] = "0"
		}
		m[i%12] = "5"
		m[(i*7)%12] = "2"
		lines = append(lines, strings.Join(append([]string{
			"2019", "14", "Jalisco", "14" + record.PadLeft(string(rune('0'+i%10)), 3), "Guadalajara", "La vida",
			types[i%4], "Sub " + types[(i/4)%4], "Mod " + string(rune('A'+i%3)),
		}, m...), ","))
	}
	r1, err := Run(cp1252(t, lines...), quiet())
	require.NoError(t, err)
	r2, err := Run(cp1252(t, lines...), quiet())
	require.NoError(t, err)
	d1, j1 := artifacts(t, r1)
	d2, j2 := artifacts(t, r2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, j1, j2)
}

func TestLabelsDifferingByCaseSpaceAccentAreDistinct(t *testing.T) {
	res, err := Run(cp1252(t, headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,robo,A pie,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo ,A pie,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robó,A pie,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
	), quiet())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Aggregator.Coder().Len(coder.Type))
	assert.Len(t, res.Aggregator.Dictionary(), 4)
}

func TestDictionaryIdempotentOnRerun(t *testing.T) {
	lines := []string{headerLine,
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Robo,A pie,Con violencia,1,0,0,0,0,0,0,0,0,0,0,0",
		"2020,9,Ciudad,9015,Alcaldía,Patrimonio,Homicidio,Doloso,Con arma de fuego,0,0,0,0,0,0,0,0,0,0,0,0",
	}
	r1, err := Run(cp1252(t, lines...), quiet())
	require.NoError(t, err)
	r2, err := Run(cp1252(t, lines...), quiet())
	require.NoError(t, err)
	assert.Equal(t, r1.Aggregator.Dictionary(), r2.Aggregator.Dictionary())
	// 全零行进入字典但不进入发生数映射
	assert.Len(t, r1.Aggregator.Dictionary(), 2)
	assert.Len(t, r1.Aggregator.Incidence(), 1)
}
