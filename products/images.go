package products

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"

	"vitrina/db"
	"vitrina/utils"
)

const (
	productPicDir = "static/productpic"
	thumbWidth    = 320
)

// UploadProductImage saves the product photo and a thumbnail, then points
// the product document at them. Admin only (gated in routes).
func UploadProductImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	productID := ps.ByName("productid")

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !utils.ValidateImageFileType(w, header) {
		return
	}

	img, err := imaging.Decode(file)
	if err != nil {
		http.Error(w, "Unreadable image", http.StatusBadRequest)
		return
	}

	if err := utils.EnsureDir(productPicDir); err != nil {
		log.Println("UploadProductImage mkdir error:", err)
		http.Error(w, "Failed to store image", http.StatusInternalServerError)
		return
	}

	fullPath := filepath.Join(productPicDir, productID+".jpg")
	thumbPath := filepath.Join(productPicDir, productID+"_thumb.jpg")

	if err := imaging.Save(img, fullPath, imaging.JPEGQuality(90)); err != nil {
		log.Println("UploadProductImage save error:", err)
		http.Error(w, "Failed to store image", http.StatusInternalServerError)
		return
	}
	thumb := imaging.Resize(img, thumbWidth, 0, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		log.Println("UploadProductImage thumbnail error:", err)
		http.Error(w, "Failed to store thumbnail", http.StatusInternalServerError)
		return
	}

	res, err := db.ProductsCollection.UpdateOne(ctx,
		bson.M{"productid": productID},
		bson.M{"$set": bson.M{"imagePath": "/" + fullPath, "updatedAt": time.Now()}},
	)
	if err != nil {
		log.Println("UploadProductImage update error:", err)
		http.Error(w, "Failed to update product", http.StatusInternalServerError)
		return
	}
	if res.MatchedCount == 0 {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"imagePath": "/" + fullPath,
		"thumbPath": "/" + thumbPath,
	})
}
