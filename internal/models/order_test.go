package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderID(t *testing.T) {
	require.Equal(t, "NYORDER202", OrderID("202"))
	require.Equal(t, "NYORDER202_5", OrderID("202.5"))
	require.Equal(t, "NYORDER147_28", OrderID("147.28"))
}

func TestOrderEntry(t *testing.T) {
	d := OrderDescriptor{
		OrderNum:   "147.28",
		Title:      "Disaster Emergency",
		SignedDate: "2019-10-04",
		PDFUrl:     "https://www.governor.ny.gov/files/eo14728.pdf",
		Src:        SrcValue,
		Governor:   "Governor Andrew M. Cuomo",
	}
	row := OrderEntry("NYORDER147_28", d, 147.28)

	require.Equal(t, "NYORDER147_28", row["order_id"])
	require.Equal(t, 147.28, row["order_num"])
	require.Equal(t, "Disaster Emergency", row["title"])
	require.Equal(t, "2019-10-04", row["signed_date"])
	require.Nil(t, row["description"])
	require.Equal(t, AuditUser, row["row_ct_user"])
	require.Equal(t, AuditUser, row["row_updt_user"])
	require.Equal(t, row["row_ct_dt"], row["row_updt_dt"])
}

func TestOrderTextEntryStoresEmptyText(t *testing.T) {
	row := OrderTextEntry("NYORDER1", "", SrcValue)
	require.Equal(t, "", row["text"])
	require.Equal(t, "NYORDER1", row["order_id"])
	require.Equal(t, SrcValue, row["src"])
}
